package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/dppd-rp/portal/permission"
)

// LoginMetrics carries metric IDs used by login flows.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
}

// LoginEvents carries audit event names used by login flows.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
}

// LoginErrors carries host-level sentinel errors used by login flows.
type LoginErrors struct {
	InvalidCredentials error
	LoginRateLimited   error
	LoginUnavailable   error
	NoMappedRole       error
	InvalidState       error
}

// AdminLoginDeps captures static admin login dependencies.
type AdminLoginDeps struct {
	ClientIPFromContext func(context.Context) string
	CheckRate           func(ctx context.Context, username, ip string) error
	RecordFailure       func(ctx context.Context, username, ip string) error
	ResetRate           func(ctx context.Context, username, ip string) error
	RateLimited         func(error) bool
	CheckCredentials    func(username, password string) error
	AdminPrincipal      func(username string) permission.Principal

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, sessionID, reason string, meta func() map[string]string)
	Warn      func(msg string, args ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunAdminLogin checks the rate budget, then the static credential. The
// limiter fails closed: if it cannot be consulted the login is refused.
func RunAdminLogin(ctx context.Context, username, password string, deps AdminLoginDeps) (permission.Principal, error) {
	username = strings.TrimSpace(username)
	ip := deps.ClientIPFromContext(ctx)

	if err := deps.CheckRate(ctx, username, ip); err != nil {
		if deps.RateLimited(err) {
			deps.MetricInc(deps.Metrics.LoginRateLimited)
			deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, username, "", "rate limited", nil)
			return permission.Principal{}, deps.Errors.LoginRateLimited
		}
		deps.Warn("login rate check failed", "error", err)
		return permission.Principal{}, errors.Join(deps.Errors.LoginUnavailable, err)
	}

	if err := deps.CheckCredentials(username, password); err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, username, "", "invalid credentials", nil)
		if rerr := deps.RecordFailure(ctx, username, ip); rerr != nil {
			deps.Warn("login failure not recorded", "error", rerr)
		}
		if !errors.Is(err, deps.Errors.InvalidCredentials) {
			deps.Warn("admin credential check failed", "error", err)
		}
		return permission.Principal{}, deps.Errors.InvalidCredentials
	}

	if err := deps.ResetRate(ctx, username, ip); err != nil {
		deps.Warn("login budget not reset", "error", err)
	}
	user := deps.AdminPrincipal(username)
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.ID, "", "", func() map[string]string {
		return map[string]string{"method": "password"}
	})
	return user, nil
}

// DiscordMember is the Discord identity resolved from an OAuth code.
type DiscordMember struct {
	UserID      string
	Username    string
	DisplayName string
	RoleIDs     []string
}

// DiscordLoginDeps captures Discord OAuth login dependencies.
type DiscordLoginDeps struct {
	VerifyState  func(ctx context.Context, state string) error
	FetchMember  func(ctx context.Context, code string) (DiscordMember, error)
	ResolveRoles func(ctx context.Context, roleIDs []string) (permission.RoleMapping, bool)

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, sessionID, reason string, meta func() map[string]string)
	Warn      func(msg string, args ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunDiscordLogin completes an OAuth callback: it verifies state, resolves
// the member's guild roles and projects the winning mapping onto a
// principal that remembers the mapping id.
func RunDiscordLogin(ctx context.Context, code, state string, deps DiscordLoginDeps) (permission.Principal, error) {
	if err := deps.VerifyState(ctx, state); err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		if errors.Is(err, deps.Errors.LoginUnavailable) {
			deps.Warn("oauth state check unavailable", "error", err)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", "oauth state unavailable", nil)
			return permission.Principal{}, err
		}
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", "invalid oauth state", nil)
		return permission.Principal{}, deps.Errors.InvalidState
	}

	member, err := deps.FetchMember(ctx, code)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.Warn("discord member lookup failed", "error", err)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", "discord lookup failed", nil)
		return permission.Principal{}, errors.Join(deps.Errors.LoginUnavailable, err)
	}

	mapping, ok := deps.ResolveRoles(ctx, member.RoleIDs)
	if !ok {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, member.UserID, "", "no mapped role", nil)
		return permission.Principal{}, deps.Errors.NoMappedRole
	}

	user := permission.PrincipalFromMapping(member.UserID, member.Username, member.DisplayName, mapping)
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.ID, "", "", func() map[string]string {
		return map[string]string{"method": "discord", "mapping_id": mapping.ID, "role": string(mapping.Role)}
	})
	return user, nil
}
