// Package autherr defines the error taxonomy shared by the attempt ledger, session registry,
// token service and auth flow. Handlers map these to transport codes.
package autherr

import (
	"errors"
	"fmt"

	"studyhub/backend/internal/kv"
)

var (
	// ErrUnauthorized is returned for a bad credential. It is deliberately generic.
	ErrUnauthorized = errors.New("invalid credentials")
	// ErrSessionInvalid is returned when the bound session is missing, inactive or expired.
	ErrSessionInvalid = errors.New("session is not active")
	// ErrTokenExpired is returned when the token's exp claim has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when the token is present in the blacklist.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenMalformed is returned when the token cannot be parsed or verified.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrStoreUnavailable is returned when the backing TTL store cannot be reached.
	ErrStoreUnavailable = kv.ErrUnavailable
	// ErrStoreConflict is returned when a write kept losing to concurrent writers of the same record.
	ErrStoreConflict = kv.ErrConflict
)

// ThrottledError is returned when a login attempt is refused by the attempt ledger.
// It carries only the retry delay; the attempt count is never exposed.
type ThrottledError struct {
	RetryAfterSeconds int
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many failed attempts; retry after %ds", e.RetryAfterSeconds)
}

// IsThrottled reports whether err is a ThrottledError and returns it.
func IsThrottled(err error) (*ThrottledError, bool) {
	var te *ThrottledError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
