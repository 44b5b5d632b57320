package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"studyhub/backend/internal/attempt/domain"
	"studyhub/backend/internal/kv"
)

const keyPrefix = "attempt:"

// Key derives the store key for (origin, identifier). The identifier is case-folded and the
// pair hashed so raw identifiers never reach the store.
func Key(origin, identifier string) string {
	sum := sha256.Sum256([]byte(origin + "\x00" + strings.ToLower(strings.TrimSpace(identifier))))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// MutateFunc receives the current record (nil when absent) and returns the record to store
// with its TTL, or nil to delete it. Returning current itself leaves the entry untouched.
type MutateFunc func(current *domain.Record) (next *domain.Record, ttl time.Duration, err error)

// Repository persists attempt records in a kv.Store.
type Repository struct {
	store kv.Store
}

// NewRepository returns a Repository over store.
func NewRepository(store kv.Store) *Repository {
	return &Repository{store: store}
}

// Get returns the record for key, or nil if none is live.
func (r *Repository) Get(ctx context.Context, key string) (*domain.Record, error) {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decode(raw)
}

// Delete removes the record for key.
func (r *Repository) Delete(ctx context.Context, key string) error {
	return r.store.Delete(ctx, key)
}

// Mutate applies fn atomically to the record for key.
func (r *Repository) Mutate(ctx context.Context, key string, fn MutateFunc) error {
	return r.store.Update(ctx, key, func(raw []byte, found bool) (kv.Mutation, error) {
		var cur *domain.Record
		if found {
			rec, err := decode(raw)
			if err != nil {
				return kv.Keep(), err
			}
			cur = rec
		}
		next, ttl, err := fn(cur)
		if err != nil {
			return kv.Keep(), err
		}
		if found && next == cur {
			return kv.Keep(), nil
		}
		if next == nil {
			if !found {
				return kv.Keep(), nil
			}
			return kv.Remove(), nil
		}
		b, err := json.Marshal(next)
		if err != nil {
			return kv.Keep(), fmt.Errorf("encode attempt record: %w", err)
		}
		return kv.Put(b, ttl), nil
	})
}

func decode(raw []byte) (*domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode attempt record: %w", err)
	}
	return &rec, nil
}
