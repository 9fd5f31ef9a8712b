package discord

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const stateIssuer = "dppd-portal/oauth-state"

// DefaultStateTTL bounds how long a user may take on the Discord consent screen.
const DefaultStateTTL = 10 * time.Minute

var (
	// ErrInvalidState is returned for forged, expired, replayed or
	// foreign-browser OAuth state.
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrStateUnavailable is returned when the state store cannot be reached.
	ErrStateUnavailable = errors.New("oauth state store unavailable")
)

// StateStore remembers issued state ids until they are consumed once.
type StateStore interface {
	Remember(ctx context.Context, id string, ttl time.Duration) error
	// Consume reports whether id was outstanding and removes it.
	Consume(ctx context.Context, id string) (bool, error)
}

// AuthState is one issued OAuth state. Value travels in the authorize URL;
// Nonce stays in the initiating browser as an HttpOnly cookie.
type AuthState struct {
	Value string
	Nonce string
}

type stateClaims struct {
	NonceHash string `json:"nh"`
	jwt.RegisteredClaims
}

// StateSigner issues the OAuth state parameter as a short-lived HS256 JWT.
// Each state is bound to a browser nonce and accepted at most once.
type StateSigner struct {
	key   []byte
	ttl   time.Duration
	store StateStore
	now   func() time.Time
}

// NewStateSigner returns a signer. A zero ttl selects DefaultStateTTL.
func NewStateSigner(key []byte, ttl time.Duration, store StateStore) (*StateSigner, error) {
	if len(key) == 0 {
		return nil, errors.New("oauth state key is required")
	}
	if store == nil {
		return nil, errors.New("oauth state store is required")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{key: key, ttl: ttl, store: store, now: time.Now}, nil
}

// TTL returns how long an issued state stays valid.
func (s *StateSigner) TTL() time.Duration { return s.ttl }

// Issue returns a fresh state and records it as outstanding.
func (s *StateSigner) Issue(ctx context.Context) (AuthState, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return AuthState{}, err
	}
	nonce := hex.EncodeToString(raw[:])

	now := s.now()
	claims := stateClaims{
		NonceHash: hashNonce(nonce),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return AuthState{}, err
	}
	if err := s.store.Remember(ctx, claims.ID, s.ttl); err != nil {
		return AuthState{}, fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}
	return AuthState{Value: value, Nonce: nonce}, nil
}

// Verify checks signature, issuer, expiry and the browser nonce, then
// consumes the state. A second Verify of the same state fails.
func (s *StateSigner) Verify(ctx context.Context, state, nonce string) error {
	if state == "" || nonce == "" {
		return ErrInvalidState
	}
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if subtle.ConstantTimeCompare([]byte(claims.NonceHash), []byte(hashNonce(nonce))) != 1 {
		return fmt.Errorf("%w: nonce mismatch", ErrInvalidState)
	}

	ok, err := s.store.Consume(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: already used", ErrInvalidState)
	}
	return nil
}

func hashNonce(nonce string) string {
	sum := sha256.Sum256([]byte(nonce))
	return hex.EncodeToString(sum[:])
}
