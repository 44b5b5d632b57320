package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studyhub/backend/internal/audit"
	"studyhub/backend/internal/kv"
	"studyhub/backend/internal/platform/autherr"
	"studyhub/backend/internal/security"
	sessiondomain "studyhub/backend/internal/session/domain"
	"studyhub/backend/internal/token/repository"
)

const component = "token"

// SessionToucher confirms a session is active and records activity on it. It returns
// (nil, nil) when the check could not be made and was skipped.
type SessionToucher interface {
	TouchSession(ctx context.Context, sessionID string) (*sessiondomain.Session, error)
}

// TokenPair is an access and refresh token bound to one session.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	AccountID        string
	SessionID        string
}

// Claims are the validated identity carried by a token.
type Claims struct {
	AccountID string
	SessionID string
	TokenID   string
	ExpiresAt time.Time
}

// Service issues, validates, rotates and revokes token pairs.
type Service struct {
	tokens    *security.TokenProvider
	blacklist *repository.Blacklist
	sessions  SessionToucher
	audit     audit.AuditLogger
	nowF      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for blacklist TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.nowF = now }
}

// WithAuditLogger sets the security event sink.
func WithAuditLogger(a audit.AuditLogger) Option {
	return func(s *Service) { s.audit = a }
}

// NewService returns a Service. The blacklist lives in store.
func NewService(tokens *security.TokenProvider, store kv.Store, sessions SessionToucher, opts ...Option) *Service {
	s := &Service{
		tokens:    tokens,
		blacklist: repository.NewBlacklist(store),
		sessions:  sessions,
		audit:     audit.Nop(),
		nowF:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RemainingTTL is how long a token expiring at expiry stays valid after now, never negative.
func RemainingTTL(expiry, now time.Time) time.Duration {
	if d := expiry.Sub(now); d > 0 {
		return d
	}
	return 0
}

// IssueTokens mints an access and refresh token for accountID bound to sessionID.
func (s *Service) IssueTokens(ctx context.Context, accountID, sessionID string) (*TokenPair, error) {
	access, err := s.tokens.Issue(security.TokenAccess, accountID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.Issue(security.TokenRefresh, accountID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
		AccountID:        accountID,
		SessionID:        sessionID,
	}, nil
}

// ValidateAccessToken checks signature and expiry, then the blacklist, then that the bound
// session is active (recording activity on it). Store outages skip the store-backed checks.
func (s *Service) ValidateAccessToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.parse(token, security.TokenAccess)
	if err != nil {
		return nil, err
	}
	revoked, err := s.blacklist.Contains(ctx, security.TokenFingerprint(token))
	switch {
	case errors.Is(err, kv.ErrUnavailable):
		s.audit.Degraded(ctx, component, "blacklist_check", err)
	case err != nil:
		return nil, err
	case revoked:
		return nil, autherr.ErrTokenRevoked
	}
	if err := s.checkSession(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// RefreshTokens validates a refresh token like ValidateAccessToken, then rotates it: the
// presented token is blacklisted and a new pair issued for the same session. Of concurrent
// callers presenting the same token exactly one succeeds; the rest get ErrTokenRevoked.
// Rotation needs the store, so an outage is returned rather than skipped.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.parse(refreshToken, security.TokenRefresh)
	if err != nil {
		return nil, err
	}
	fp := security.TokenFingerprint(refreshToken)
	revoked, err := s.blacklist.Contains(ctx, fp)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if revoked {
		s.reuse(ctx, claims)
		return nil, autherr.ErrTokenRevoked
	}
	if err := s.checkSession(ctx, claims); err != nil {
		return nil, err
	}
	added, err := s.blacklist.AddIfAbsent(ctx, fp, RemainingTTL(claims.ExpiresAt, s.nowF()))
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if !added {
		s.reuse(ctx, claims)
		return nil, autherr.ErrTokenRevoked
	}
	pair, err := s.IssueTokens(ctx, claims.AccountID, claims.SessionID)
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, audit.Entry{
		Action:    audit.ActionRefreshRotated,
		Source:    component,
		AccountID: claims.AccountID,
		SessionID: claims.SessionID,
	})
	return pair, nil
}

// RevokeToken blacklists an access or refresh token until its own expiry. Expired tokens are
// already unusable and are ignored.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	claims, err := s.parse(token, security.TokenAccess)
	if errors.Is(err, autherr.ErrTokenMalformed) {
		claims, err = s.parse(token, security.TokenRefresh)
	}
	if errors.Is(err, autherr.ErrTokenExpired) {
		return nil
	}
	if err != nil {
		return err
	}
	ttl := RemainingTTL(claims.ExpiresAt, s.nowF())
	if ttl <= 0 {
		return nil
	}
	if err := s.blacklist.Add(ctx, security.TokenFingerprint(token), ttl); err != nil {
		s.audit.LogEvent(ctx, audit.Entry{
			Action:    audit.ActionRevokeFailed,
			Source:    component,
			AccountID: claims.AccountID,
			SessionID: claims.SessionID,
			Err:       err,
		})
		return fmt.Errorf("revoke token: %w", err)
	}
	s.audit.LogEvent(ctx, audit.Entry{
		Action:    audit.ActionTokenRevoked,
		Source:    component,
		AccountID: claims.AccountID,
		SessionID: claims.SessionID,
	})
	return nil
}

func (s *Service) parse(token string, typ security.TokenType) (*Claims, error) {
	c, err := s.tokens.Parse(token, typ)
	if err != nil {
		if errors.Is(err, security.ErrExpiredToken) {
			return nil, autherr.ErrTokenExpired
		}
		return nil, autherr.ErrTokenMalformed
	}
	return &Claims{
		AccountID: c.Subject,
		SessionID: c.SessionID,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

func (s *Service) checkSession(ctx context.Context, claims *Claims) error {
	sess, err := s.sessions.TouchSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, autherr.ErrSessionInvalid) {
			return autherr.ErrSessionInvalid
		}
		return fmt.Errorf("session check: %w", err)
	}
	if sess != nil && sess.AccountID != claims.AccountID {
		return autherr.ErrSessionInvalid
	}
	return nil
}

func (s *Service) reuse(ctx context.Context, claims *Claims) {
	s.audit.LogEvent(ctx, audit.Entry{
		Action:    audit.ActionRefreshReuse,
		Source:    component,
		AccountID: claims.AccountID,
		SessionID: claims.SessionID,
	})
}
