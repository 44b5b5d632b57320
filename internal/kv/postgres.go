package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	pgGet    = `SELECT value FROM kv_entries WHERE key = $1 AND expires_at > $2`
	pgUpsert = `INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`
	pgDelete       = `DELETE FROM kv_entries WHERE key = $1`
	pgLockKey      = `SELECT pg_advisory_xact_lock(hashtext($1))`
	pgSelectLocked = `SELECT value, expires_at FROM kv_entries WHERE key = $1`
	pgPurge        = `DELETE FROM kv_entries WHERE expires_at <= $1`
)

// PostgresStore implements Store on a kv_entries table (see internal/db/migrations).
// Expired rows are invisible to reads and are overwritten or purged later.
// Update takes a transaction-scoped advisory lock on the key, so updates of one key
// are serialised even when the row does not exist yet.
type PostgresStore struct {
	db   *sql.DB
	nowF func() time.Time
}

// NewPostgresStore returns a Store backed by db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, nowF: time.Now}
}

// WithNow overrides the clock used for expiry arithmetic. Intended for tests.
func (s *PostgresStore) WithNow(now func() time.Time) *PostgresStore {
	s.nowF = now
	return s
}

// Get returns the value for key or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, pgGet, key, s.nowF().UTC()).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// SetWithTTL upserts key with expires_at = now + ttl.
func (s *PostgresStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	_, err := s.db.ExecContext(ctx, pgUpsert, key, value, s.nowF().UTC().Add(ttl))
	return err
}

// Delete removes key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, pgDelete, key)
	return err
}

// Update runs fn inside a transaction holding an advisory lock on key.
func (s *PostgresStore) Update(ctx context.Context, key string, fn UpdateFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, pgLockKey, key); err != nil {
		return fmt.Errorf("lock key: %w", err)
	}

	now := s.nowF().UTC()
	var (
		cur       []byte
		expiresAt time.Time
		found     bool
	)
	switch scanErr := tx.QueryRowContext(ctx, pgSelectLocked, key).Scan(&cur, &expiresAt); {
	case scanErr == nil:
		found = expiresAt.After(now)
		if !found {
			cur = nil
		}
	case errors.Is(scanErr, sql.ErrNoRows):
	default:
		return scanErr
	}

	m, err := fn(cur, found)
	if err != nil {
		return err
	}
	if err = m.validate(); err != nil {
		return err
	}
	switch m.kind {
	case mutationPut:
		_, err = tx.ExecContext(ctx, pgUpsert, key, m.value, now.Add(m.ttl))
	case mutationDelete:
		_, err = tx.ExecContext(ctx, pgDelete, key)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// PurgeExpired deletes rows whose TTL has elapsed and returns how many were removed.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, pgPurge, s.nowF().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
