package service

import (
	"context"
	"fmt"

	"studyhub/backend/internal/identity/domain"
	"studyhub/backend/internal/platform/autherr"
	"studyhub/backend/internal/security"
)

// PasswordVerifier is a CredentialVerifier comparing secrets against bcrypt hashes from an
// AccountLookup. Unknown accounts cost the same bcrypt work as known ones.
type PasswordVerifier struct {
	accounts domain.AccountLookup
	hasher   *security.Hasher
}

// NewPasswordVerifier returns a PasswordVerifier.
func NewPasswordVerifier(accounts domain.AccountLookup, hasher *security.Hasher) *PasswordVerifier {
	return &PasswordVerifier{accounts: accounts, hasher: hasher}
}

// Verify implements domain.CredentialVerifier.
func (v *PasswordVerifier) Verify(ctx context.Context, identifier, secret string) (string, error) {
	acct, err := v.accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		return "", fmt.Errorf("account lookup: %w", err)
	}
	if acct == nil || acct.SecretHash == "" {
		_ = v.hasher.CompareDummy([]byte(secret))
		return "", autherr.ErrUnauthorized
	}
	if err := v.hasher.Compare(acct.SecretHash, []byte(secret)); err != nil {
		return "", autherr.ErrUnauthorized
	}
	if acct.Disabled {
		return "", autherr.ErrUnauthorized
	}
	return acct.ID, nil
}
