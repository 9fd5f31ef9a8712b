package session

import (
	"time"

	"github.com/dppd-rp/portal/permission"
)

// Session is the server-side record behind a signed session cookie.
//
// IPHash and UserAgentHash are hex SHA-256 digests of the client values seen
// at login, empty when unknown. Raw values are never stored.
type Session struct {
	SchemaVersion uint8 `json:"-"`

	ID   string               `json:"id"`
	User permission.Principal `json:"user"`

	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastActivity time.Time `json:"lastActivity"`
	RefreshedAt  time.Time `json:"refreshedAt"`

	IPHash        string `json:"ipHash,omitempty"`
	UserAgentHash string `json:"userAgentHash,omitempty"`

	refreshed bool
}

// New builds a session for user starting at now.
func New(id string, user permission.Principal, now time.Time, lifetime time.Duration) *Session {
	return &Session{
		SchemaVersion: CurrentSchemaVersion,
		ID:            id,
		User:          user,
		CreatedAt:     now,
		ExpiresAt:     now.Add(lifetime),
		LastActivity:  now,
		RefreshedAt:   now,
	}
}

// Expired reports whether the session is no longer valid at now. The
// expiry instant itself is already expired.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NeedsRefresh reports whether the last renewal is older than threshold.
func (s *Session) NeedsRefresh(now time.Time, threshold time.Duration) bool {
	return now.Sub(s.RefreshedAt) > threshold
}

// Refresh renews the session for a full lifetime from now.
func (s *Session) Refresh(now time.Time, lifetime time.Duration) {
	s.ExpiresAt = now.Add(lifetime)
	s.RefreshedAt = now
	s.LastActivity = now
	s.refreshed = true
}

// WasRefreshed reports whether the last Store.Get renewed this session.
func (s *Session) WasRefreshed() bool {
	return s.refreshed
}
