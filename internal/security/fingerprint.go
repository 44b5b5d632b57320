package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TokenFingerprint returns the hex SHA-256 of a compact JWT's signature segment. The
// signature is unique per signed token, so the fingerprint identifies the token without
// storing it.
func TokenFingerprint(token string) string {
	sig := token
	if i := strings.LastIndexByte(token, '.'); i >= 0 {
		sig = token[i+1:]
	}
	h := sha256.Sum256([]byte(sig))
	return hex.EncodeToString(h[:])
}
