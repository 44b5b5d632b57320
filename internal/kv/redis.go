package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

// Jittered pause between WATCH rounds that lost to another writer.
const (
	watchInitialBackoff = time.Millisecond
	watchMaxBackoff     = 25 * time.Millisecond
)

// updateStripes is the number of in-process locks Update spreads keys over.
const updateStripes = 256

// RedisOptions configures the Redis client built by NewRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// DialTimeout, ReadTimeout and WriteTimeout bound each network call; zero uses go-redis defaults.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisClient returns a go-redis client for opts. The client connects lazily.
func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
}

// RedisStore implements Store on Redis. Expiry is enforced by Redis itself (PX on SET),
// and Update uses WATCH/MULTI/EXEC so a concurrent write to the key forces a retry.
type RedisStore struct {
	client  redis.UniversalClient
	stripes [updateStripes]chan struct{}
}

// NewRedisStore returns a Store backed by client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	s := &RedisStore{client: client}
	for i := range s.stripes {
		s.stripes[i] = make(chan struct{}, 1)
	}
	return s
}

// lockKey serializes Updates of key within this process so a burst on one key queues here
// instead of exhausting the connection pool on WATCH rounds. Waiting past ctx is contention.
func (s *RedisStore) lockKey(ctx context.Context, key string) (func(), error) {
	stripe := s.stripes[xxhash.Sum64String(key)%updateStripes]
	select {
	case stripe <- struct{}{}:
		return func() { <-stripe }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrConflict, ctx.Err())
	}
}

// Get returns the value for key or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// SetWithTTL writes value with a PX expiry.
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Update performs a WATCH-guarded read-modify-write. A round that lost to another writer is
// retried after a jittered pause until ctx is done; if ctx ends while queued behind or losing
// to other writers the result is ErrConflict, so contention on a reachable server is never
// mistaken for an outage.
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	unlock, err := s.lockKey(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		found := true
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				return err
			}
			cur, found = nil, false
		}
		m, err := fn(cur, found)
		if err != nil {
			return err
		}
		if err := m.validate(); err != nil {
			return err
		}
		if m.kind == mutationKeep {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if m.kind == mutationDelete {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, m.value, m.ttl)
			return nil
		})
		return err
	}

	b := newWatchBackOff()
	conflicted := false
	for {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			conflicted = true
		case conflicted && ctx.Err() != nil:
			return fmt.Errorf("%w: %w", ErrConflict, ctx.Err())
		default:
			return err
		}
		t := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %w", ErrConflict, ctx.Err())
		case <-t.C:
		}
	}
}

func newWatchBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = watchInitialBackoff
	b.MaxInterval = watchMaxBackoff
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	return b
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
