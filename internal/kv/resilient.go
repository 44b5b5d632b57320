package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Default bounds for a single store call and the pause before its one retry.
const (
	DefaultOpTimeout    = 250 * time.Millisecond
	DefaultRetryBackoff = 50 * time.Millisecond
)

// ResilientOptions configures NewResilient.
type ResilientOptions struct {
	// OpTimeout bounds each attempt of a store call.
	OpTimeout time.Duration
	// RetryBackoff is the pause between the first attempt and the retry.
	RetryBackoff time.Duration
	Logger       *slog.Logger
}

// Resilient wraps a Store so every call is bounded by a timeout and retried once after a
// short backoff. Failures that survive the retry are reported as ErrUnavailable, which the
// auth components treat as the signal to fail open. Contention is not an outage: an Update
// that lost to concurrent writers, or timed out while the store still answers a ping, is
// reported as ErrConflict.
type Resilient struct {
	next         Store
	opTimeout    time.Duration
	retryBackoff time.Duration
	log          *slog.Logger
}

// NewResilient wraps next.
func NewResilient(next Store, opts ResilientOptions) *Resilient {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Resilient{
		next:         next,
		opTimeout:    opts.OpTimeout,
		retryBackoff: opts.RetryBackoff,
		log:          opts.Logger,
	}
}

// Get implements Store.
func (r *Resilient) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := r.do(ctx, "get", func(ctx context.Context) error {
		v, err := r.next.Get(ctx, key)
		out = v
		return err
	}, nil)
	return out, err
}

// SetWithTTL implements Store.
func (r *Resilient) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.do(ctx, "set", func(ctx context.Context) error {
		return r.next.SetWithTTL(ctx, key, value, ttl)
	}, nil)
}

// Delete implements Store.
func (r *Resilient) Delete(ctx context.Context, key string) error {
	return r.do(ctx, "delete", func(ctx context.Context) error {
		return r.next.Delete(ctx, key)
	}, nil)
}

// Update implements Store. Errors produced by fn are returned as-is and never retried.
func (r *Resilient) Update(ctx context.Context, key string, fn UpdateFunc) error {
	var fnErr error
	wrapped := func(cur []byte, found bool) (Mutation, error) {
		m, err := fn(cur, found)
		fnErr = err
		return m, err
	}
	err := r.do(ctx, "update", func(ctx context.Context) error {
		fnErr = nil
		return r.next.Update(ctx, key, wrapped)
	}, func(err error) bool {
		return fnErr != nil && errors.Is(err, fnErr)
	})
	if errors.Is(err, ErrUnavailable) && isTimeout(err) && r.reachable(ctx) {
		return fmt.Errorf("%w: update timed out on a reachable store: %w", ErrConflict, context.DeadlineExceeded)
	}
	return err
}

// reachable reports whether the wrapped store answers a ping. Stores without Ping are
// assumed unreachable so a timeout on them still fails open.
func (r *Resilient) reachable(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if _, ok := r.next.(Pinger); !ok {
		return false
	}
	return r.Ping(ctx) == nil
}

// Ping implements Pinger when the wrapped store does.
func (r *Resilient) Ping(ctx context.Context) error {
	p, ok := r.next.(Pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return p.Ping(ctx)
}

// do runs op with a per-attempt timeout and a single retry. Errors that are part of the
// normal contract (ErrNotFound, ErrInvalidTTL, caller errors) are permanent.
func (r *Resilient) do(ctx context.Context, name string, op func(context.Context) error, isCallerErr func(error) bool) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
		defer cancel()
		err := op(opCtx)
		if err == nil {
			return struct{}{}, nil
		}
		if isPermanent(err) || (isCallerErr != nil && isCallerErr(err)) {
			return struct{}{}, backoff.Permanent(err)
		}
		r.log.Debug("kv: transient store error", "op", name, "error", err)
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.retryBackoff)),
		backoff.WithMaxTries(2),
	)
	if err == nil {
		return nil
	}
	if isPermanent(err) || (isCallerErr != nil && isCallerErr(err)) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
}

// isTimeout matches both context deadlines and socket deadlines derived from them.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTTL) || errors.Is(err, ErrConflict)
}
