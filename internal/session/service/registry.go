package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"studyhub/backend/internal/audit"
	"studyhub/backend/internal/device"
	"studyhub/backend/internal/kv"
	"studyhub/backend/internal/platform/autherr"
	"studyhub/backend/internal/session/domain"
	"studyhub/backend/internal/session/repository"
)

const component = "session"

// Defaults for Config.
const (
	DefaultMaxSessions   = 5
	DefaultInactivityTTL = 30 * 24 * time.Hour
)

// ErrInvalidRequest is returned when RequestMeta fails validation.
var ErrInvalidRequest = errors.New("invalid session request")

// Config bounds the sessions an account may hold.
type Config struct {
	MaxSessions   int
	InactivityTTL time.Duration
}

// Registry tracks active sessions per account, capped at MaxSessions with least recently
// active eviction.
type Registry struct {
	repo     *repository.Repository
	cfg      Config
	audit    audit.AuditLogger
	log      *slog.Logger
	validate *validator.Validate
	nowF     func() time.Time
	newID    func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.nowF = now }
}

// WithAuditLogger sets the security event sink.
func WithAuditLogger(a audit.AuditLogger) Option {
	return func(r *Registry) { r.audit = a }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry returns a Registry over store. Zero config fields take the defaults.
func NewRegistry(store kv.Store, cfg Config, opts ...Option) *Registry {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.InactivityTTL <= 0 {
		cfg.InactivityTTL = DefaultInactivityTTL
	}
	r := &Registry{
		repo:     repository.NewRepository(store, cfg.InactivityTTL),
		cfg:      cfg,
		audit:    audit.Nop(),
		log:      slog.Default(),
		validate: validator.New(),
		nowF:     time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CreateSession opens a session for accountID. Expired sessions are pruned and, while the
// account is at the cap, the least recently active session is evicted. The returned session
// is active; store failures are returned.
func (r *Registry) CreateSession(ctx context.Context, accountID string, meta domain.RequestMeta) (*domain.Session, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidRequest)
	}
	if err := r.validate.Struct(meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	now := r.nowF()
	s := &domain.Session{
		ID:             r.newID(),
		AccountID:      accountID,
		OriginAddress:  meta.Origin,
		Client:         device.Describe(meta.UserAgent),
		LoginMethod:    meta.LoginMethod,
		CreatedAt:      now,
		LastActivityAt: now,
		Active:         true,
	}
	if err := r.repo.PutPointer(ctx, s.ID, accountID); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	var evicted, pruned []*domain.Session
	err := r.repo.Mutate(ctx, accountID, func(cur []*domain.Session) ([]*domain.Session, error) {
		evicted, pruned = nil, nil
		live := make([]*domain.Session, 0, len(cur)+1)
		for _, c := range cur {
			if c.ActiveAt(now, r.cfg.InactivityTTL) {
				live = append(live, c)
			} else {
				pruned = append(pruned, c)
			}
		}
		sortByActivity(live)
		for len(live) >= r.cfg.MaxSessions {
			evicted = append(evicted, live[0])
			live = live[1:]
		}
		return append(live, s), nil
	})
	if err != nil {
		if derr := r.repo.DeletePointer(ctx, s.ID); derr != nil {
			r.log.WarnContext(ctx, "session: dangling pointer after failed create", "session_id", s.ID, "error", derr)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	for _, p := range pruned {
		r.dropPointer(ctx, p.ID)
	}
	for _, e := range evicted {
		r.dropPointer(ctx, e.ID)
		r.audit.LogEvent(ctx, audit.Entry{
			Action:    audit.ActionSessionEvicted,
			Source:    component,
			AccountID: accountID,
			SessionID: e.ID,
			Origin:    meta.Origin,
		})
	}
	r.audit.LogEvent(ctx, audit.Entry{
		Action:    audit.ActionSessionCreated,
		Source:    component,
		AccountID: accountID,
		SessionID: s.ID,
		Origin:    meta.Origin,
	})
	out := *s
	return &out, nil
}

// TouchSession marks the session used now and returns it. It returns ErrSessionInvalid when
// the session is unknown, revoked or idle past the inactivity TTL. When the store is
// unavailable it fails open and returns (nil, nil).
func (r *Registry) TouchSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	accountID, err := r.repo.ResolvePointer(ctx, sessionID)
	if err != nil {
		return nil, r.failOpen(ctx, "touch", err)
	}
	if accountID == "" {
		return nil, autherr.ErrSessionInvalid
	}
	var touched *domain.Session
	err = r.repo.Mutate(ctx, accountID, func(cur []*domain.Session) ([]*domain.Session, error) {
		now := r.nowF()
		touched = nil
		for _, c := range cur {
			if c.ID != sessionID {
				continue
			}
			if !c.ActiveAt(now, r.cfg.InactivityTTL) {
				return nil, autherr.ErrSessionInvalid
			}
			c.LastActivityAt = now
			cp := *c
			touched = &cp
			return cur, nil
		}
		return nil, autherr.ErrSessionInvalid
	})
	if err != nil {
		if errors.Is(err, autherr.ErrSessionInvalid) {
			return nil, err
		}
		if errors.Is(err, kv.ErrConflict) {
			// Activity was bumped concurrently; still enforce revocation and idleness.
			s, gerr := r.GetActive(ctx, sessionID)
			if gerr != nil && !errors.Is(gerr, autherr.ErrSessionInvalid) {
				return nil, r.failOpen(ctx, "touch", gerr)
			}
			return s, gerr
		}
		return nil, r.failOpen(ctx, "touch", err)
	}
	if err := r.repo.PutPointer(ctx, sessionID, accountID); err != nil {
		r.log.DebugContext(ctx, "session: pointer refresh failed", "session_id", sessionID, "error", err)
	}
	return touched, nil
}

// GetActive returns the session if it is active, ErrSessionInvalid otherwise.
func (r *Registry) GetActive(ctx context.Context, sessionID string) (*domain.Session, error) {
	accountID, err := r.repo.ResolvePointer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, autherr.ErrSessionInvalid
	}
	list, err := r.repo.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	now := r.nowF()
	for _, s := range list {
		if s.ID == sessionID && s.ActiveAt(now, r.cfg.InactivityTTL) {
			return s, nil
		}
	}
	return nil, autherr.ErrSessionInvalid
}

// RevokeSession ends the session. Revoking an unknown or already revoked session is a no-op.
func (r *Registry) RevokeSession(ctx context.Context, sessionID string) error {
	accountID, err := r.repo.ResolvePointer(ctx, sessionID)
	if err != nil {
		r.revokeFailed(ctx, "", sessionID, err)
		return fmt.Errorf("revoke session: %w", err)
	}
	if accountID == "" {
		return nil
	}
	removed := false
	err = r.repo.Mutate(ctx, accountID, func(cur []*domain.Session) ([]*domain.Session, error) {
		removed = false
		out := cur[:0:0]
		for _, c := range cur {
			if c.ID == sessionID {
				removed = true
				continue
			}
			out = append(out, c)
		}
		return out, nil
	})
	if err != nil {
		r.revokeFailed(ctx, accountID, sessionID, err)
		return fmt.Errorf("revoke session: %w", err)
	}
	if err := r.repo.DeletePointer(ctx, sessionID); err != nil {
		r.log.WarnContext(ctx, "session: pointer delete failed", "session_id", sessionID, "error", err)
	}
	if removed {
		r.audit.LogEvent(ctx, audit.Entry{
			Action:    audit.ActionSessionRevoked,
			Source:    component,
			AccountID: accountID,
			SessionID: sessionID,
		})
	}
	return nil
}

// RevokeAllSessions revokes every session of accountID except exceptSessionID (which may be
// empty) and returns how many active sessions were revoked.
func (r *Registry) RevokeAllSessions(ctx context.Context, accountID, exceptSessionID string) (int, error) {
	var revoked []*domain.Session
	err := r.repo.Mutate(ctx, accountID, func(cur []*domain.Session) ([]*domain.Session, error) {
		now := r.nowF()
		revoked = nil
		var keep []*domain.Session
		for _, c := range cur {
			switch {
			case c.ID == exceptSessionID && exceptSessionID != "":
				keep = append(keep, c)
			case c.ActiveAt(now, r.cfg.InactivityTTL):
				revoked = append(revoked, c)
			}
		}
		return keep, nil
	})
	if err != nil {
		r.revokeFailed(ctx, accountID, "", err)
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	for _, s := range revoked {
		r.dropPointer(ctx, s.ID)
	}
	if len(revoked) > 0 {
		r.audit.LogEvent(ctx, audit.Entry{
			Action:    audit.ActionSessionsRevoked,
			Source:    component,
			AccountID: accountID,
			SessionID: exceptSessionID,
			Metadata:  fmt.Sprintf(`{"count":%d}`, len(revoked)),
		})
	}
	return len(revoked), nil
}

// FindActiveSessions lists the account's active sessions, most recently active first.
func (r *Registry) FindActiveSessions(ctx context.Context, accountID string) ([]*domain.Session, error) {
	list, err := r.repo.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	now := r.nowF()
	out := make([]*domain.Session, 0, len(list))
	for _, s := range list {
		if s.ActiveAt(now, r.cfg.InactivityTTL) {
			out = append(out, s)
		}
	}
	sortByActivity(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// sortByActivity orders least recently active first; ties break on creation time then id so
// eviction is deterministic.
func sortByActivity(list []*domain.Session) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.Before(b.LastActivityAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (r *Registry) dropPointer(ctx context.Context, sessionID string) {
	if err := r.repo.DeletePointer(ctx, sessionID); err != nil {
		r.log.WarnContext(ctx, "session: pointer delete failed", "session_id", sessionID, "error", err)
	}
}

func (r *Registry) revokeFailed(ctx context.Context, accountID, sessionID string, err error) {
	r.audit.LogEvent(ctx, audit.Entry{
		Action:    audit.ActionRevokeFailed,
		Source:    component,
		AccountID: accountID,
		SessionID: sessionID,
		Err:       err,
	})
}

func (r *Registry) failOpen(ctx context.Context, op string, err error) error {
	if errors.Is(err, kv.ErrUnavailable) {
		r.audit.Degraded(ctx, component, op, err)
		return nil
	}
	return err
}
