package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studyhub/backend/internal/kv"
	"studyhub/backend/internal/session/domain"
)

const (
	accountPrefix = "sessions:"
	pointerPrefix = "sid:"
)

// MutateFunc receives the account's stored sessions and returns the replacement list.
// Returning an empty list deletes the account document.
type MutateFunc func(sessions []*domain.Session) ([]*domain.Session, error)

// Repository stores all sessions of an account in one kv document so the whole set can be
// changed atomically, plus a session id -> account id pointer for lookups by id.
type Repository struct {
	store kv.Store
	ttl   time.Duration
}

// NewRepository returns a Repository whose entries live for ttl after their last write.
func NewRepository(store kv.Store, ttl time.Duration) *Repository {
	return &Repository{store: store, ttl: ttl}
}

type document struct {
	Sessions []*domain.Session `json:"sessions"`
}

// List returns the stored sessions of accountID, including any that have gone idle.
func (r *Repository) List(ctx context.Context, accountID string) ([]*domain.Session, error) {
	raw, err := r.store.Get(ctx, accountPrefix+accountID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decode(raw)
}

// Mutate applies fn atomically to the sessions of accountID.
func (r *Repository) Mutate(ctx context.Context, accountID string, fn MutateFunc) error {
	return r.store.Update(ctx, accountPrefix+accountID, func(raw []byte, found bool) (kv.Mutation, error) {
		var cur []*domain.Session
		if found {
			list, err := decode(raw)
			if err != nil {
				return kv.Keep(), err
			}
			cur = list
		}
		next, err := fn(cur)
		if err != nil {
			return kv.Keep(), err
		}
		if len(next) == 0 {
			if !found {
				return kv.Keep(), nil
			}
			return kv.Remove(), nil
		}
		b, err := json.Marshal(document{Sessions: next})
		if err != nil {
			return kv.Keep(), fmt.Errorf("encode sessions: %w", err)
		}
		return kv.Put(b, r.ttl), nil
	})
}

// PutPointer maps sessionID to accountID.
func (r *Repository) PutPointer(ctx context.Context, sessionID, accountID string) error {
	return r.store.SetWithTTL(ctx, pointerPrefix+sessionID, []byte(accountID), r.ttl)
}

// ResolvePointer returns the account owning sessionID, or "" when unknown.
func (r *Repository) ResolvePointer(ctx context.Context, sessionID string) (string, error) {
	raw, err := r.store.Get(ctx, pointerPrefix+sessionID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(raw), nil
}

// DeletePointer removes the pointer for sessionID.
func (r *Repository) DeletePointer(ctx context.Context, sessionID string) error {
	return r.store.Delete(ctx, pointerPrefix+sessionID)
}

func decode(raw []byte) ([]*domain.Session, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return doc.Sessions, nil
}
