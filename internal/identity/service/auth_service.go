package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	attemptdomain "studyhub/backend/internal/attempt/domain"
	"studyhub/backend/internal/audit"
	"studyhub/backend/internal/identity/domain"
	"studyhub/backend/internal/platform/autherr"
	sessiondomain "studyhub/backend/internal/session/domain"
	tokenservice "studyhub/backend/internal/token/service"
)

const component = "auth"

// ErrInvalidLogin is returned for a login request missing its identifier or secret.
var ErrInvalidLogin = errors.New("identifier and secret are required")

// AttemptLedger is the throttle consulted before and after each credential check.
type AttemptLedger interface {
	Status(ctx context.Context, origin, identifier string) (attemptdomain.Decision, error)
	CheckAndRecordAttempt(ctx context.Context, origin, identifier string, outcome attemptdomain.Outcome) (attemptdomain.Decision, error)
}

// SessionRegistry is the minimal session registry needed by the auth service.
type SessionRegistry interface {
	CreateSession(ctx context.Context, accountID string, meta sessiondomain.RequestMeta) (*sessiondomain.Session, error)
	RevokeSession(ctx context.Context, sessionID string) error
	RevokeAllSessions(ctx context.Context, accountID, exceptSessionID string) (int, error)
	FindActiveSessions(ctx context.Context, accountID string) ([]*sessiondomain.Session, error)
}

// TokenService is the minimal token service needed by the auth service.
type TokenService interface {
	IssueTokens(ctx context.Context, accountID, sessionID string) (*tokenservice.TokenPair, error)
	ValidateAccessToken(ctx context.Context, token string) (*tokenservice.Claims, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*tokenservice.TokenPair, error)
	RevokeToken(ctx context.Context, token string) error
}

// LoginRequest is one sign-in attempt. Origin is the client address, "unknown" when absent.
type LoginRequest struct {
	Identifier string
	Secret     string
	Origin     string
	UserAgent  string
	Method     sessiondomain.LoginMethod
}

// AuthResult holds the outcome of Login or Refresh.
type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	AccountID        string
	SessionID        string
}

// Device is an active session as shown in a device list.
type Device struct {
	Session *sessiondomain.Session
	Current bool
}

// AuthService runs login, refresh, logout and device management over the attempt ledger,
// session registry and token service.
type AuthService struct {
	ledger   AttemptLedger
	verifier domain.CredentialVerifier
	sessions SessionRegistry
	tokens   TokenService
	audit    audit.AuditLogger
}

// NewAuthService returns an AuthService with the given dependencies. auditLog may be nil.
func NewAuthService(ledger AttemptLedger, verifier domain.CredentialVerifier, sessions SessionRegistry, tokens TokenService, auditLog audit.AuditLogger) *AuthService {
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	return &AuthService{
		ledger:   ledger,
		verifier: verifier,
		sessions: sessions,
		tokens:   tokens,
		audit:    auditLog,
	}
}

// Login checks the throttle, verifies the credential, records the outcome and on success
// opens a session and issues its token pair. Throttled keys get *autherr.ThrottledError and
// the verifier is not called.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" || req.Secret == "" {
		return nil, ErrInvalidLogin
	}
	origin := strings.TrimSpace(req.Origin)
	if origin == "" {
		origin = "unknown"
	}
	method := req.Method
	if method == "" {
		method = sessiondomain.LoginPassword
	}

	status, err := s.ledger.Status(ctx, origin, identifier)
	if err != nil {
		return nil, err
	}
	if !status.Allowed {
		return nil, &autherr.ThrottledError{RetryAfterSeconds: status.RetryAfterSeconds()}
	}

	accountID, err := s.verifier.Verify(ctx, identifier, req.Secret)
	if err != nil {
		if !errors.Is(err, autherr.ErrUnauthorized) {
			return nil, err
		}
		decision, lerr := s.ledger.CheckAndRecordAttempt(ctx, origin, identifier, attemptdomain.OutcomeFailure)
		s.audit.LogEvent(ctx, audit.Entry{
			Action:    audit.ActionLoginFailed,
			Source:    component,
			AccountID: identifier,
			Origin:    origin,
		})
		if lerr != nil {
			return nil, lerr
		}
		if !decision.Allowed {
			return nil, &autherr.ThrottledError{RetryAfterSeconds: decision.RetryAfterSeconds()}
		}
		return nil, autherr.ErrUnauthorized
	}

	if _, err := s.ledger.CheckAndRecordAttempt(ctx, origin, identifier, attemptdomain.OutcomeSuccess); err != nil {
		return nil, err
	}
	sess, err := s.sessions.CreateSession(ctx, accountID, sessiondomain.RequestMeta{
		Origin:      origin,
		UserAgent:   req.UserAgent,
		LoginMethod: method,
	})
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.IssueTokens(ctx, accountID, sess.ID)
	if err != nil {
		if rerr := s.sessions.RevokeSession(ctx, sess.ID); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return nil, err
	}
	s.audit.LogEvent(ctx, audit.Entry{
		Action:    audit.ActionLoginSucceeded,
		Source:    component,
		AccountID: accountID,
		SessionID: sess.ID,
		Origin:    origin,
	})
	return resultFrom(pair), nil
}

// Refresh rotates a refresh token into a new pair for the same session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	pair, err := s.tokens.RefreshTokens(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return resultFrom(pair), nil
}

// Logout revokes the caller's session and blacklists the presented tokens. refreshToken may
// be empty. Revocation failures are returned.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := s.tokens.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return err
	}
	var errs []error
	if err := s.sessions.RevokeSession(ctx, claims.SessionID); err != nil {
		errs = append(errs, err)
	}
	if err := s.tokens.RevokeToken(ctx, accessToken); err != nil {
		errs = append(errs, err)
	}
	if refreshToken != "" {
		if err := s.tokens.RevokeToken(ctx, refreshToken); err != nil && !errors.Is(err, autherr.ErrTokenMalformed) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("logout: %w", errors.Join(errs...))
	}
	return nil
}

// LogoutOtherDevices revokes every session of the caller's account except the current one
// and returns how many were revoked.
func (s *AuthService) LogoutOtherDevices(ctx context.Context, accessToken string) (int, error) {
	claims, err := s.tokens.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return 0, err
	}
	return s.sessions.RevokeAllSessions(ctx, claims.AccountID, claims.SessionID)
}

// ListDevices returns the caller's active sessions, most recently active first.
func (s *AuthService) ListDevices(ctx context.Context, accessToken string) ([]Device, error) {
	claims, err := s.tokens.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	list, err := s.sessions.FindActiveSessions(ctx, claims.AccountID)
	if err != nil {
		return nil, err
	}
	out := make([]Device, len(list))
	for i, sess := range list {
		out[i] = Device{Session: sess, Current: sess.ID == claims.SessionID}
	}
	return out, nil
}

func resultFrom(pair *tokenservice.TokenPair) *AuthResult {
	return &AuthResult{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		AccountID:        pair.AccountID,
		SessionID:        pair.SessionID,
	}
}
