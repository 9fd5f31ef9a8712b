package middleware

import (
	"context"
	"net/http"

	portal "github.com/dppd-rp/portal"
	"github.com/dppd-rp/portal/internal/httpx"
	"github.com/dppd-rp/portal/permission"
	"github.com/dppd-rp/portal/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the session attached by RequireSession or
// LoadSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok && sess != nil
}

// PrincipalFromContext returns the user of the attached session, or nil.
func PrincipalFromContext(ctx context.Context) *permission.Principal {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return nil
	}
	return &sess.User
}

// ClientContext attaches the client IP and user agent to the request
// context. Mount it after chi's RealIP so forwarded addresses are used.
func ClientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(portal.RequestContext(r)))
	})
}

// LoadSession attaches the caller's session when the cookie resolves and
// passes anonymous requests through untouched.
func LoadSession(engine *portal.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := SessionFromContext(r.Context()); ok || engine == nil {
				next.ServeHTTP(w, r)
				return
			}
			if sess, ok := engine.SessionFromRequest(r); ok {
				r = r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, sess))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession rejects requests without a live session with 401.
func RequireSession(engine *portal.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return LoadSession(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := SessionFromContext(r.Context()); !ok {
				httpx.Error(w, http.StatusUnauthorized, permission.ReasonNotAuthenticated)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
