// Package kv defines the TTL-capable key-value store contract used by the attempt ledger,
// session registry and token blacklist, together with Redis, Postgres and in-memory implementations.
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key is missing or its TTL has elapsed.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable is returned when the backing store cannot be reached after a retry.
	ErrUnavailable = errors.New("kv: store unavailable")
	// ErrConflict is returned when an optimistic Update kept losing to concurrent writers.
	ErrConflict = errors.New("kv: concurrent update conflict")
	// ErrInvalidTTL is returned when a write is attempted with a non-positive TTL.
	ErrInvalidTTL = errors.New("kv: ttl must be positive")
)

// Store is a key-value store whose entries expire on their own.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// SetWithTTL writes value under key; the entry is treated as deleted once ttl elapses.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Update performs an atomic read-modify-write of key. fn receives the current value
	// (found is false when the key is missing or expired) and returns the mutation to apply.
	// fn may be invoked more than once when an implementation retries on contention, so it
	// must not have side effects beyond assigning to captured result variables.
	// An error returned by fn aborts the update and is returned unchanged.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// Pinger is implemented by stores that can report reachability (used for readiness).
type Pinger interface {
	Ping(ctx context.Context) error
}

// UpdateFunc computes the next state of a key from its current state.
type UpdateFunc func(current []byte, found bool) (Mutation, error)

type mutationKind int

const (
	mutationKeep mutationKind = iota
	mutationPut
	mutationDelete
)

// Mutation describes what Update writes back.
type Mutation struct {
	kind  mutationKind
	value []byte
	ttl   time.Duration
}

// Put writes value with the given ttl.
func Put(value []byte, ttl time.Duration) Mutation {
	return Mutation{kind: mutationPut, value: value, ttl: ttl}
}

// Keep leaves the key untouched.
func Keep() Mutation {
	return Mutation{kind: mutationKeep}
}

// Remove deletes the key.
func Remove() Mutation {
	return Mutation{kind: mutationDelete}
}

func (m Mutation) validate() error {
	if m.kind == mutationPut && m.ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
