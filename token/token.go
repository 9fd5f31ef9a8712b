package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	idBytes   = 32
	separator = "."
)

// ErrEmptySecret is returned by NewSigner when no key material is supplied.
var ErrEmptySecret = errors.New("signing secret is empty")

// Generate returns a new hex-encoded 256-bit session id.
//
// Ids are not checked for collisions; at 2^256 the probability is negligible.
// A store that ever reports a collision should call Generate again.
func Generate() (string, error) {
	var raw [idBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// Signer signs and verifies session ids with a server-held secret.
type Signer struct {
	secret []byte
}

// NewSigner copies secret into a new Signer.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Signer{secret: key}, nil
}

// Sign returns the hex HMAC-SHA256 of id.
func (s *Signer) Sign(id string) string {
	return hex.EncodeToString(s.mac(id))
}

// Verify reports whether signature is the valid signature of id. The
// comparison is constant time.
func (s *Signer) Verify(id, signature string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(provided, s.mac(id))
}

// Encode returns the cookie value "<id>.<signature>".
func (s *Signer) Encode(id string) string {
	return id + separator + s.Sign(id)
}

// Decode returns the session id carried by value when its signature is valid.
func (s *Signer) Decode(value string) (string, bool) {
	parts := strings.Split(value, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	if !s.Verify(parts[0], parts[1]) {
		return "", false
	}
	return parts[0], true
}

func (s *Signer) mac(id string) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(id))
	return m.Sum(nil)
}
