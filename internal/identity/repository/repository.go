package repository

import (
	"context"
	"strings"
	"sync"

	"studyhub/backend/internal/identity/domain"
)

// MemoryAccounts is an in-process AccountLookup keyed by case-folded identifier. It backs
// development servers and tests; production deployments plug in the account service.
type MemoryAccounts struct {
	mu sync.RWMutex
	m  map[string]*domain.Account
}

// NewMemoryAccounts returns an empty directory.
func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{m: make(map[string]*domain.Account)}
}

// Put adds or replaces an account.
func (r *MemoryAccounts) Put(a *domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.m[normalize(a.Identifier)] = &cp
}

// FindByIdentifier implements domain.AccountLookup.
func (r *MemoryAccounts) FindByIdentifier(_ context.Context, identifier string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.m[normalize(identifier)]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
