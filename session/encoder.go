package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dppd-rp/portal/permission"
)

const (
	// CurrentSchemaVersion is written by Encode.
	CurrentSchemaVersion = 2
	// schemaVersionV1 predates mapping ids and renewal timestamps.
	schemaVersionV1 = 1
)

// ErrSessionCorrupt is returned when a stored record cannot be decoded.
var ErrSessionCorrupt = errors.New("session record corrupt")

type envelope struct {
	Version uint8           `json:"v"`
	Session json.RawMessage `json:"session"`
}

// sessionV1 is the first stored shape. Renewal was tracked by lastActivity
// alone and the principal carried no mapping id.
type sessionV1 struct {
	ID            string               `json:"id"`
	User          permission.Principal `json:"user"`
	CreatedAt     time.Time            `json:"createdAt"`
	ExpiresAt     time.Time            `json:"expiresAt"`
	LastActivity  time.Time            `json:"lastActivity"`
	IPHash        string               `json:"ipHash,omitempty"`
	UserAgentHash string               `json:"userAgentHash,omitempty"`
}

// Encode serializes s at CurrentSchemaVersion.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	body, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Version: CurrentSchemaVersion, Session: body})
}

// Decode parses any supported schema version. The returned session keeps
// the version it was stored with in SchemaVersion so callers can persist
// the migration.
func Decode(data []byte) (*Session, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	if len(env.Session) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrSessionCorrupt)
	}

	switch env.Version {
	case CurrentSchemaVersion:
		var s Session
		if err := json.Unmarshal(env.Session, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
		}
		s.SchemaVersion = CurrentSchemaVersion
		return &s, nil
	case schemaVersionV1:
		var old sessionV1
		if err := json.Unmarshal(env.Session, &old); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
		}
		return migrateV1(old), nil
	default:
		return nil, fmt.Errorf("%w: unsupported session schema version %d", ErrSessionCorrupt, env.Version)
	}
}

func migrateV1(old sessionV1) *Session {
	user := old.User
	user.MappingID = ""
	return &Session{
		SchemaVersion: schemaVersionV1,
		ID:            old.ID,
		User:          user,
		CreatedAt:     old.CreatedAt,
		ExpiresAt:     old.ExpiresAt,
		LastActivity:  old.LastActivity,
		RefreshedAt:   old.LastActivity,
		IPHash:        old.IPHash,
		UserAgentHash: old.UserAgentHash,
	}
}
