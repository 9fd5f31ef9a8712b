package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dppd-rp/portal/discord"
	"github.com/dppd-rp/portal/internal/audit"
	"github.com/dppd-rp/portal/internal/flows"
	"github.com/dppd-rp/portal/internal/rate"
	"github.com/dppd-rp/portal/password"
	"github.com/dppd-rp/portal/permission"
	"github.com/dppd-rp/portal/session"
	"github.com/dppd-rp/portal/token"
)

// Engine is the portal's session and authorization facade. Build it with
// [Builder]; methods are safe for concurrent use.
type Engine struct {
	config    Config
	logger    *slog.Logger
	signer    *token.Signer
	sessions  *session.Store
	roles     *permission.RoleManager
	evaluator *permission.Evaluator
	limiter   *rate.Limiter
	admin     *password.AdminCredential
	oauth     *discord.OAuth
	audit     *audit.Dispatcher
	metrics   *Metrics
}

// IssuedSession is a freshly created session and the cookie carrying it.
type IssuedSession struct {
	Token   string
	Session *session.Session
	Cookie  *http.Cookie
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Ping checks Redis reachability.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.Ping(ctx)
}

// ActiveSessions estimates the number of live sessions. Errors count as zero.
func (e *Engine) ActiveSessions(ctx context.Context) int {
	return resolveOrDefault(e, "session.estimate", 0, func() (int, error) {
		return e.sessions.EstimateActiveSessions(ctx)
	})
}

/*
====================================
FAILURE POLICIES
====================================
*/

// resolveOrDeny is the security-path policy: any error resolves to absent.
// Misses are silent; everything else is logged and counted.
func resolveOrDeny[T any](e *Engine, op string, fn func() (T, error)) (T, bool) {
	v, err := fn()
	if err == nil {
		return v, true
	}
	var zero T
	if !errors.Is(err, session.ErrSessionNotFound) {
		e.metricInc(MetricSessionLookupFailed)
		e.logger.Warn("security lookup failed, treating as unauthenticated", "op", op, "error", err)
	}
	return zero, false
}

// resolveOrDefault is the content-path policy: any error resolves to def.
func resolveOrDefault[T any](e *Engine, op string, def T, fn func() (T, error)) T {
	v, err := fn()
	if err != nil {
		e.logger.Warn("lookup failed, using default", "op", op, "error", err)
		return def
	}
	return v
}

/*
====================================
SESSIONS
====================================
*/

// CreateSession persists a new session for user and returns the signed
// cookie. Client IP and user agent from ctx are stored as hashes for
// device-binding detection.
func (e *Engine) CreateSession(ctx context.Context, user permission.Principal) (*IssuedSession, error) {
	if e == nil || e.sessions == nil || e.signer == nil {
		return nil, ErrEngineNotReady
	}

	id, err := token.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}
	sess := session.New(id, user, e.sessions.Now(), e.sessions.Lifetime())
	sess.IPHash, sess.UserAgentHash = e.bindingHashes(ctx)

	if err := e.sessions.Save(ctx, sess); err != nil {
		e.logger.Error("session save failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	value := e.signer.Encode(id)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, user.ID, id, "", func() map[string]string {
		return map[string]string{"role": string(user.Role)}
	})
	return &IssuedSession{Token: value, Session: sess, Cookie: e.sessionCookie(value)}, nil
}

// Session resolves a cookie value to its session. It fails closed: a bad
// signature, a missing or expired record and any storage error all return
// false.
func (e *Engine) Session(ctx context.Context, value string) (*session.Session, bool) {
	if e == nil || e.signer == nil || value == "" {
		return nil, false
	}
	id, ok := e.signer.Decode(value)
	if !ok {
		return nil, false
	}

	sess, ok := resolveOrDeny(e, "session.get", func() (*session.Session, error) {
		return e.sessions.Get(ctx, id)
	})
	if !ok {
		return nil, false
	}

	e.metricInc(MetricSessionResolved)
	if sess.WasRefreshed() {
		e.metricInc(MetricSessionRefreshed)
	}
	e.detectDeviceBinding(ctx, sess)
	return sess, true
}

// SessionFromRequest resolves the session cookie of r.
func (e *Engine) SessionFromRequest(r *http.Request) (*session.Session, bool) {
	if e == nil || r == nil {
		return nil, false
	}
	c, err := r.Cookie(e.config.Cookie.Name)
	if err != nil {
		return nil, false
	}
	return e.Session(RequestContext(r), c.Value)
}

// Invalidate deletes the session behind r's cookie, if any, and returns the
// cookie that clears it. It is idempotent and never fails.
func (e *Engine) Invalidate(r *http.Request) *http.Cookie {
	if c, err := r.Cookie(e.config.Cookie.Name); err == nil && c.Value != "" {
		ctx := RequestContext(r)
		id := flows.RunLogout(ctx, c.Value, flows.LogoutDeps{
			DecodeToken:  e.signer.Decode,
			SessionStore: e.sessions,
			Warn:         e.logger.Warn,
		})
		if id != "" {
			e.metricInc(MetricLogout)
			e.emitAudit(ctx, auditEventLogout, true, "", id, "", nil)
		}
	}
	return e.ClearCookie()
}

// CookieName returns the session cookie name.
func (e *Engine) CookieName() string {
	return e.config.Cookie.Name
}

func (e *Engine) sessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     e.config.Cookie.Name,
		Value:    value,
		Path:     e.config.Cookie.Path,
		Domain:   e.config.Cookie.Domain,
		MaxAge:   int(e.sessions.Lifetime() / time.Second),
		HttpOnly: true,
		Secure:   e.config.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearCookie returns a cookie that removes the session cookie.
func (e *Engine) ClearCookie() *http.Cookie {
	c := e.sessionCookie("")
	c.MaxAge = -1
	return c
}

// RequestContext returns r's context carrying the client IP and user agent,
// unless middleware already attached them.
func RequestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if clientIPFromContext(ctx) == "" {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx = WithClientIP(ctx, ip)
	}
	if userAgentFromContext(ctx) == "" {
		if ua := r.UserAgent(); ua != "" {
			ctx = WithUserAgent(ctx, ua)
		}
	}
	return ctx
}

/*
====================================
AUTHORIZATION
====================================
*/

// Authorize evaluates whether user may perform action on pageID.
func (e *Engine) Authorize(ctx context.Context, user *permission.Principal, pageID string, action permission.Action, opts permission.CheckOptions) permission.Decision {
	start := time.Now()
	d := e.evaluator.Evaluate(ctx, user, pageID, action, opts)
	e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
	if d.Allowed {
		e.metricInc(MetricAuthorizeAllowed)
	} else {
		e.metricInc(MetricAuthorizeDenied)
	}
	return d
}
