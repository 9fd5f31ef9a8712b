package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
)

// ErrInvalidCredentials is returned for any username or password mismatch.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AdminCredential is the single static username/password pair that may sign
// in without Discord.
type AdminCredential struct {
	username string
	hash     string
	hasher   *Hasher
}

// NewAdminCredential checks that hash parses before accepting it, so a
// misconfigured deployment fails at startup rather than at first login.
func NewAdminCredential(username, hash string, hasher *Hasher) (*AdminCredential, error) {
	if username == "" {
		return nil, errors.New("admin username is required")
	}
	if hasher == nil {
		return nil, errors.New("admin hasher is required")
	}
	if _, err := parsePHC(hash); err != nil {
		return nil, err
	}
	return &AdminCredential{username: username, hash: hash, hasher: hasher}, nil
}

// Username returns the configured admin username.
func (c *AdminCredential) Username() string {
	return c.username
}

// Check verifies username and password. The hash is always computed so the
// response time does not reveal whether the username matched.
func (c *AdminCredential) Check(username, password string) error {
	want := sha256.Sum256([]byte(c.username))
	got := sha256.Sum256([]byte(username))
	userOK := subtle.ConstantTimeCompare(want[:], got[:]) == 1

	passOK, err := c.hasher.Verify(password, c.hash)
	if err != nil {
		return err
	}
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}
