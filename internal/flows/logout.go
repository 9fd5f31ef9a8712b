package flows

import "context"

// LogoutSessionStore deletes sessions by id.
type LogoutSessionStore interface {
	Delete(ctx context.Context, sessionID string) error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	DecodeToken  func(string) (string, bool)
	SessionStore LogoutSessionStore
	Warn         func(msg string, args ...any)
}

// RunLogout deletes the session behind token, if any. It never fails: an
// invalid token or a storage error still ends in a logged-out client. It
// returns the deleted session id, or "".
func RunLogout(ctx context.Context, token string, deps LogoutDeps) string {
	id, ok := deps.DecodeToken(token)
	if !ok {
		return ""
	}
	if err := deps.SessionStore.Delete(ctx, id); err != nil {
		deps.Warn("session delete failed on logout", "error", err)
	}
	return id
}
