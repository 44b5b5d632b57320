package repository

import (
	"context"
	"errors"
	"time"

	"studyhub/backend/internal/kv"
)

const keyPrefix = "blacklist:"

// Blacklist stores fingerprints of revoked tokens until the tokens themselves expire.
type Blacklist struct {
	store kv.Store
}

// NewBlacklist returns a Blacklist over store.
func NewBlacklist(store kv.Store) *Blacklist {
	return &Blacklist{store: store}
}

// Contains reports whether fingerprint has been revoked.
func (b *Blacklist) Contains(ctx context.Context, fingerprint string) (bool, error) {
	_, err := b.store.Get(ctx, keyPrefix+fingerprint)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Add revokes fingerprint for ttl.
func (b *Blacklist) Add(ctx context.Context, fingerprint string, ttl time.Duration) error {
	return b.store.SetWithTTL(ctx, keyPrefix+fingerprint, []byte{1}, ttl)
}

// AddIfAbsent revokes fingerprint for ttl unless it already is. added is false when another
// caller revoked it first, so exactly one of any concurrent callers sees true.
func (b *Blacklist) AddIfAbsent(ctx context.Context, fingerprint string, ttl time.Duration) (added bool, err error) {
	err = b.store.Update(ctx, keyPrefix+fingerprint, func(_ []byte, found bool) (kv.Mutation, error) {
		added = !found
		if found {
			return kv.Keep(), nil
		}
		return kv.Put([]byte{1}, ttl), nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}
