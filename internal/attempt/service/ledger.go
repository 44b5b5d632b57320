package service

import (
	"context"
	"errors"
	"time"

	"studyhub/backend/internal/attempt/domain"
	"studyhub/backend/internal/attempt/repository"
	"studyhub/backend/internal/audit"
	"studyhub/backend/internal/kv"
)

const component = "attempt"

// Ledger counts failed logins per (origin, identifier) and escalates lockouts by tier.
type Ledger struct {
	repo   *repository.Repository
	policy domain.Policy
	audit  audit.AuditLogger
	nowF   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.nowF = now }
}

// WithAuditLogger sets the security event sink.
func WithAuditLogger(a audit.AuditLogger) Option {
	return func(l *Ledger) { l.audit = a }
}

// NewLedger returns a Ledger storing records in store. policy must be valid.
func NewLedger(store kv.Store, policy domain.Policy, opts ...Option) (*Ledger, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		repo:   repository.NewRepository(store),
		policy: policy,
		audit:  audit.Nop(),
		nowF:   time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Status reports whether the key is currently blocked without recording anything.
// An unavailable store fails open.
func (l *Ledger) Status(ctx context.Context, origin, identifier string) (domain.Decision, error) {
	rec, err := l.repo.Get(ctx, repository.Key(origin, identifier))
	if err != nil {
		return l.failOpen(ctx, "status", err)
	}
	now := l.nowF()
	if rec.BlockedAt(now) {
		return domain.Deny(rec.RetryAfter(now)), nil
	}
	return domain.Allow(), nil
}

// CheckAndRecordAttempt records the outcome of a credential check. A success clears the key.
// A failure while blocked is denied without counting; otherwise the count is incremented
// (after a window reset if the record is stale) and the matching tier applied.
// An unavailable store fails open. A failure that cannot be recorded because of contention
// on a reachable store is denied for ContentionRetryAfter.
func (l *Ledger) CheckAndRecordAttempt(ctx context.Context, origin, identifier string, outcome domain.Outcome) (domain.Decision, error) {
	key := repository.Key(origin, identifier)
	if outcome == domain.OutcomeSuccess {
		if err := l.repo.Delete(ctx, key); err != nil {
			return l.failOpen(ctx, "clear", err)
		}
		return domain.Allow(), nil
	}

	var (
		decision   domain.Decision
		newlyBlock bool
	)
	err := l.repo.Mutate(ctx, key, func(cur *domain.Record) (*domain.Record, time.Duration, error) {
		now := l.nowF()
		newlyBlock = false
		if cur.BlockedAt(now) {
			decision = domain.Deny(cur.RetryAfter(now))
			return cur, 0, nil
		}
		next := &domain.Record{}
		if cur != nil && !cur.Stale(now, l.policy.Window) {
			next.AttemptCount = cur.AttemptCount
		}
		next.AttemptCount++
		next.LastAttemptAt = now
		decision = domain.Allow()
		if block := l.policy.BlockFor(next.AttemptCount); block > 0 {
			until := now.Add(block)
			next.BlockedUntil = &until
			decision = domain.Deny(block)
			newlyBlock = true
		}
		return next, l.policy.RecordTTL(next, now), nil
	})
	if errors.Is(err, kv.ErrConflict) {
		l.audit.LogEvent(ctx, audit.Entry{
			Action:    audit.ActionLoginThrottled,
			Source:    component,
			AccountID: identifier,
			Origin:    origin,
			Err:       err,
		})
		return domain.Deny(domain.ContentionRetryAfter), nil
	}
	if err != nil {
		return l.failOpen(ctx, "record_failure", err)
	}
	if newlyBlock {
		l.audit.LogEvent(ctx, audit.Entry{
			Action:    audit.ActionLoginThrottled,
			Source:    component,
			AccountID: identifier,
			Origin:    origin,
		})
	}
	return decision, nil
}

func (l *Ledger) failOpen(ctx context.Context, op string, err error) (domain.Decision, error) {
	if errors.Is(err, kv.ErrUnavailable) {
		l.audit.Degraded(ctx, component, op, err)
		return domain.Allow(), nil
	}
	return domain.Decision{}, err
}
