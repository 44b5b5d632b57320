package domain

import (
	"time"

	devicedomain "studyhub/backend/internal/device/domain"
)

// LoginMethod is how the account authenticated when the session was opened.
type LoginMethod string

const (
	LoginPassword  LoginMethod = "password"
	LoginFederated LoginMethod = "federated"
)

// Session is one signed-in device for an account.
type Session struct {
	ID             string                        `json:"id"`
	AccountID      string                        `json:"account_id"`
	OriginAddress  string                        `json:"origin_address"`
	Client         devicedomain.ClientDescriptor `json:"client"`
	LoginMethod    LoginMethod                   `json:"login_method"`
	CreatedAt      time.Time                     `json:"created_at"`
	LastActivityAt time.Time                     `json:"last_activity_at"`
	Active         bool                          `json:"active"`
}

// ExpiredAt reports whether the session has been idle longer than inactivity at now.
func (s *Session) ExpiredAt(now time.Time, inactivity time.Duration) bool {
	return now.Sub(s.LastActivityAt) > inactivity
}

// ActiveAt reports whether the session is usable at now.
func (s *Session) ActiveAt(now time.Time, inactivity time.Duration) bool {
	return s.Active && !s.ExpiredAt(now, inactivity)
}

// RequestMeta describes the request opening a session. Origin is a client IP, or "unknown"
// when the transport could not determine one.
type RequestMeta struct {
	Origin      string      `validate:"required,ip|eq=unknown"`
	UserAgent   string      `validate:"max=2048"`
	LoginMethod LoginMethod `validate:"required,oneof=password federated"`
}
