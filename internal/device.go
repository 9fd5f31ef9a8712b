package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBindingValue returns the hex SHA-256 of a client IP or user agent, or
// "" for an empty input so unknown values stay distinguishable.
func HashBindingValue(v string) string {
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
