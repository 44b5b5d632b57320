package domain

import "context"

// Account is the credential record the password verifier checks against. Account
// management lives outside this module; only lookups are needed here.
type Account struct {
	ID         string
	Identifier string
	SecretHash string
	Disabled   bool
}

// AccountLookup resolves a login identifier (e.g. email) to an account.
// It returns (nil, nil) when no account matches.
type AccountLookup interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)
}

// CredentialVerifier checks a secret for an identifier and returns the account id.
// A wrong identifier or secret yields autherr.ErrUnauthorized.
type CredentialVerifier interface {
	Verify(ctx context.Context, identifier, secret string) (accountID string, err error)
}
