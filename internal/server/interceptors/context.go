package interceptors

import "context"

type contextKey struct{ name string }

var (
	accountIDKey   = contextKey{"account_id"}
	sessionIDKey   = contextKey{"session_id"}
	accessTokenKey = contextKey{"access_token"}
)

// WithIdentity returns a context carrying the authenticated account, its session and the
// access token that proved them. Handlers read these via GetAccountID, GetSessionID and
// GetAccessToken.
func WithIdentity(ctx context.Context, accountID, sessionID, accessToken string) context.Context {
	ctx = context.WithValue(ctx, accountIDKey, accountID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	ctx = context.WithValue(ctx, accessTokenKey, accessToken)
	return ctx
}

// GetAccountID returns the account_id from context and true if set; otherwise "", false.
func GetAccountID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(accountIDKey).(string)
	return v, ok
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}

// GetAccessToken returns the validated bearer token from context and true if set.
func GetAccessToken(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(accessTokenKey).(string)
	return v, ok
}
