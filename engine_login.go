package portal

import (
	"context"
	"errors"
	"net/http"

	"github.com/dppd-rp/portal/discord"
	"github.com/dppd-rp/portal/internal/flows"
	"github.com/dppd-rp/portal/internal/rate"
	"github.com/dppd-rp/portal/password"
	"github.com/dppd-rp/portal/permission"
)

// AdminUserID is the principal id of the static admin account.
const AdminUserID = "admin"

var loginErrors = flows.LoginErrors{
	InvalidCredentials: ErrInvalidCredentials,
	LoginRateLimited:   ErrLoginRateLimited,
	LoginUnavailable:   ErrLoginUnavailable,
	NoMappedRole:       ErrNoMappedRole,
	InvalidState:       ErrInvalidOAuthState,
}

var loginMetrics = flows.LoginMetrics{
	LoginSuccess:     int(MetricLoginSuccess),
	LoginFailure:     int(MetricLoginFailure),
	LoginRateLimited: int(MetricLoginRateLimited),
}

var loginEvents = flows.LoginEvents{
	LoginSuccess:     auditEventLoginSuccess,
	LoginFailure:     auditEventLoginFailure,
	LoginRateLimited: auditEventLoginRateLimited,
}

// LoginAdmin checks the static admin credential and issues a super-admin
// session. Failures are throttled per username and per client IP.
func (e *Engine) LoginAdmin(ctx context.Context, username, pass string) (*IssuedSession, error) {
	if e == nil || e.admin == nil {
		return nil, ErrAdminLoginDisabled
	}
	user, err := flows.RunAdminLogin(ctx, username, pass, flows.AdminLoginDeps{
		ClientIPFromContext: clientIPFromContext,
		CheckRate:           e.limiter.Check,
		RecordFailure:       e.limiter.RecordFailure,
		ResetRate:           e.limiter.Reset,
		RateLimited: func(err error) bool {
			return errors.Is(err, rate.ErrRateLimited)
		},
		CheckCredentials: func(username, pass string) error {
			err := e.admin.Check(username, pass)
			if errors.Is(err, password.ErrInvalidCredentials) {
				return ErrInvalidCredentials
			}
			return err
		},
		AdminPrincipal: func(username string) permission.Principal {
			return e.adminPrincipal(ctx, username)
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.logger.Warn,
		Metrics:   loginMetrics,
		Events:    loginEvents,
		Errors:    loginErrors,
	})
	if err != nil {
		return nil, err
	}
	return e.CreateSession(ctx, user)
}

func (e *Engine) adminPrincipal(ctx context.Context, username string) permission.Principal {
	cfg := e.roles.Config(ctx)
	perms := make([]string, 0, len(cfg.AvailablePermissions))
	for _, p := range cfg.AvailablePermissions {
		perms = append(perms, p.ID)
	}
	return permission.Principal{
		ID:          AdminUserID,
		Username:    username,
		DisplayName: username,
		Role:        permission.RoleSuperAdmin,
		Permissions: perms,
	}
}

// OAuthNonceCookieName carries the browser half of a pending Discord login.
const OAuthNonceCookieName = "dppd_oauth_nonce"

// DiscordAuthRequest is a started Discord login: the consent URL to redirect
// to and the nonce cookie the same browser must return at the callback.
type DiscordAuthRequest struct {
	URL    string
	Cookie *http.Cookie
}

// DiscordAuthURL starts a Discord login.
func (e *Engine) DiscordAuthURL(ctx context.Context) (*DiscordAuthRequest, error) {
	if e == nil || e.oauth == nil {
		return nil, ErrDiscordLoginDisabled
	}
	authURL, nonce, err := e.oauth.AuthCodeURL(ctx)
	if err != nil {
		if errors.Is(err, discord.ErrStateUnavailable) {
			e.logger.Warn("oauth state store unavailable", "error", err)
			return nil, errors.Join(ErrLoginUnavailable, err)
		}
		return nil, err
	}
	return &DiscordAuthRequest{URL: authURL, Cookie: e.nonceCookie(nonce, int(e.oauth.StateTTL().Seconds()))}, nil
}

// ClearOAuthNonceCookie returns a cookie that removes the nonce cookie.
func (e *Engine) ClearOAuthNonceCookie() *http.Cookie {
	return e.nonceCookie("", -1)
}

// The nonce cookie is Lax: the callback is a cross-site navigation from
// Discord, which Strict cookies do not survive.
func (e *Engine) nonceCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     OAuthNonceCookieName,
		Value:    value,
		Path:     e.config.Cookie.Path,
		Domain:   e.config.Cookie.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   e.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// LoginDiscord completes the OAuth callback and issues a session for the
// highest-priority mapping among the member's guild roles. nonce is the value
// of the OAuthNonceCookieName cookie sent with the callback.
func (e *Engine) LoginDiscord(ctx context.Context, code, state, nonce string) (*IssuedSession, error) {
	if e == nil || e.oauth == nil {
		return nil, ErrDiscordLoginDisabled
	}
	user, err := flows.RunDiscordLogin(ctx, code, state, flows.DiscordLoginDeps{
		VerifyState: func(ctx context.Context, state string) error {
			err := e.oauth.VerifyState(ctx, state, nonce)
			if errors.Is(err, discord.ErrStateUnavailable) {
				return errors.Join(ErrLoginUnavailable, err)
			}
			return err
		},
		FetchMember: func(ctx context.Context, code string) (flows.DiscordMember, error) {
			m, err := e.oauth.Member(ctx, code)
			if errors.Is(err, discord.ErrNotGuildMember) {
				// Outside the guild means no roles, hence no mapping.
				return flows.DiscordMember{}, nil
			}
			if err != nil {
				return flows.DiscordMember{}, err
			}
			return flows.DiscordMember{
				UserID:      m.UserID,
				Username:    m.Username,
				DisplayName: m.DisplayName,
				RoleIDs:     m.RoleIDs,
			}, nil
		},
		ResolveRoles: e.roles.ResolveDiscordRoles,
		MetricInc:    e.flowMetricInc,
		EmitAudit:    e.emitAudit,
		Warn:         e.logger.Warn,
		Metrics:      loginMetrics,
		Events:       loginEvents,
		Errors:       loginErrors,
	})
	if err != nil {
		return nil, err
	}
	return e.CreateSession(ctx, user)
}
