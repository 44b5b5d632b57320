package domain

import (
	"errors"
	"fmt"
	"time"
)

// Outcome is the result of one credential check.
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "failure"
}

// Record is the throttling state for one (origin, identifier) key.
type Record struct {
	AttemptCount  int        `json:"attempt_count"`
	LastAttemptAt time.Time  `json:"last_attempt_at"`
	BlockedUntil  *time.Time `json:"blocked_until,omitempty"`
}

// BlockedAt reports whether the record blocks attempts at now.
func (r *Record) BlockedAt(now time.Time) bool {
	return r != nil && r.BlockedUntil != nil && r.BlockedUntil.After(now)
}

// RetryAfter returns how long the block still holds at now, zero when not blocked.
func (r *Record) RetryAfter(now time.Time) time.Duration {
	if !r.BlockedAt(now) {
		return 0
	}
	return r.BlockedUntil.Sub(now)
}

// windowAnchor is the instant the rolling window is measured from: the last attempt, or the
// end of the last block when that is later.
func (r *Record) windowAnchor() time.Time {
	if r.BlockedUntil != nil && r.BlockedUntil.After(r.LastAttemptAt) {
		return *r.BlockedUntil
	}
	return r.LastAttemptAt
}

// Stale reports whether the record's failures are old enough to be forgotten.
func (r *Record) Stale(now time.Time, window time.Duration) bool {
	return !r.BlockedAt(now) && now.Sub(r.windowAnchor()) > window
}

// Tier is one row of the lockout table: from MinAttempts failures on, block for Block.
type Tier struct {
	MinAttempts int
	Block       time.Duration
}

// Policy holds the lockout tiers and the rolling window.
type Policy struct {
	Window time.Duration
	Tiers  []Tier
}

// DefaultWindow is the rolling window after which unblocked failures are forgotten.
const DefaultWindow = time.Hour

// DefaultPolicy returns the standard escalation: 4-5 failures 15m, 6-8 60m, 9-12 240m, 13+ 1440m.
func DefaultPolicy() Policy {
	return Policy{
		Window: DefaultWindow,
		Tiers: []Tier{
			{MinAttempts: 4, Block: 15 * time.Minute},
			{MinAttempts: 6, Block: 60 * time.Minute},
			{MinAttempts: 9, Block: 240 * time.Minute},
			{MinAttempts: 13, Block: 1440 * time.Minute},
		},
	}
}

var ErrInvalidPolicy = errors.New("invalid attempt policy")

// Validate checks the window is positive and tiers strictly ascend in both columns.
func (p Policy) Validate() error {
	if p.Window <= 0 {
		return fmt.Errorf("%w: window must be positive", ErrInvalidPolicy)
	}
	for i, t := range p.Tiers {
		if t.MinAttempts < 1 || t.Block <= 0 {
			return fmt.Errorf("%w: tier %d must have min attempts >= 1 and a positive block", ErrInvalidPolicy, i)
		}
		if i > 0 {
			prev := p.Tiers[i-1]
			if t.MinAttempts <= prev.MinAttempts || t.Block <= prev.Block {
				return fmt.Errorf("%w: tier %d is not above tier %d", ErrInvalidPolicy, i, i-1)
			}
		}
	}
	return nil
}

// BlockFor returns the block duration for a cumulative failure count, zero for none.
func (p Policy) BlockFor(count int) time.Duration {
	var d time.Duration
	for _, t := range p.Tiers {
		if count < t.MinAttempts {
			break
		}
		d = t.Block
	}
	return d
}

// RecordTTL is how long a record must outlive now so its count survives until the window
// after its block (if any) has elapsed.
func (p Policy) RecordTTL(r *Record, now time.Time) time.Duration {
	ttl := p.Window
	if r.BlockedAt(now) {
		ttl += r.BlockedUntil.Sub(now)
	}
	return ttl
}

// Decision is the ledger's verdict. It never exposes the attempt count.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// ContentionRetryAfter is the pause asked of a caller whose failure could not be recorded
// because the record kept changing under it.
const ContentionRetryAfter = time.Second

// Allow is the permissive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny blocks for retryAfter.
func Deny(retryAfter time.Duration) Decision {
	return Decision{Allowed: false, RetryAfter: retryAfter}
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed || d.RetryAfter <= 0 {
		return 0
	}
	return int((d.RetryAfter + time.Second - 1) / time.Second)
}
