package portal

import "errors"

var (
	// ErrUnauthorized is returned when a request carries no valid session.
	ErrUnauthorized = errors.New("not authenticated")
	// ErrForbidden is returned when the session's principal may not perform
	// the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials is returned for a wrong admin username or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned when the login budget is exhausted.
	ErrLoginRateLimited = errors.New("too many login attempts")
	// ErrLoginUnavailable is returned when a login dependency is down.
	ErrLoginUnavailable = errors.New("login temporarily unavailable")
	// ErrNoMappedRole is returned when none of the user's Discord roles is mapped.
	ErrNoMappedRole = errors.New("no mapped role")
	// ErrInvalidOAuthState is returned for a forged or expired OAuth state.
	ErrInvalidOAuthState = errors.New("invalid oauth state")
	// ErrAdminLoginDisabled is returned when no admin credential is configured.
	ErrAdminLoginDisabled = errors.New("admin login disabled")
	// ErrDiscordLoginDisabled is returned when Discord OAuth is not configured.
	ErrDiscordLoginDisabled = errors.New("discord login disabled")
	// ErrSessionCreationFailed wraps storage failures while issuing a session.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrEngineNotReady is returned by a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
