package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"studyhub/backend/internal/identity/service"
	"studyhub/backend/internal/server/interceptors"
	sessiondomain "studyhub/backend/internal/session/domain"
	sessionservice "studyhub/backend/internal/session/service"
)

// AuthAPI is the auth flow served over gRPC.
type AuthAPI interface {
	Login(ctx context.Context, req service.LoginRequest) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	LogoutOtherDevices(ctx context.Context, accessToken string) (int, error)
	ListDevices(ctx context.Context, accessToken string) ([]service.Device, error)
}

// AuthServer implements AuthServiceServer for login, refresh, logout and device listing.
type AuthServer struct {
	auth AuthAPI
	log  *slog.Logger
}

// NewAuthServer returns a new Auth gRPC server. If auth is nil, every RPC returns Unimplemented.
func NewAuthServer(auth AuthAPI, log *slog.Logger) *AuthServer {
	if log == nil {
		log = slog.Default()
	}
	return &AuthServer{auth: auth, log: log}
}

// Login verifies identifier and secret and returns a token pair for a new session.
// Throttled callers get ResourceExhausted with the retry delay in the message.
func (s *AuthServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Login not implemented")
	}
	method := sessiondomain.LoginMethod(stringField(req, "login_method"))
	if method == "" {
		method = sessiondomain.LoginPassword
	}
	res, err := s.auth.Login(ctx, service.LoginRequest{
		Identifier: stringField(req, "identifier"),
		Secret:     stringField(req, "secret"),
		Origin:     interceptors.ClientIP(ctx),
		UserAgent:  interceptors.UserAgent(ctx),
		Method:     method,
	})
	if err != nil {
		return nil, s.authErr(ctx, "Login", err)
	}
	return authResultStruct(res)
}

// Refresh rotates refresh_token into a new pair.
func (s *AuthServer) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
	}
	token := stringField(req, "refresh_token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh_token is required")
	}
	res, err := s.auth.Refresh(ctx, token)
	if err != nil {
		return nil, s.authErr(ctx, "Refresh", err)
	}
	return authResultStruct(res)
}

// Logout ends the caller's session. The optional refresh_token is revoked along with the
// bearer access token.
func (s *AuthServer) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
	}
	access, ok := interceptors.GetAccessToken(ctx)
	if !ok || access == "" {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	if err := s.auth.Logout(ctx, access, stringField(req, "refresh_token")); err != nil {
		return nil, s.authErr(ctx, "Logout", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

// LogoutOtherDevices revokes every other session of the caller's account.
func (s *AuthServer) LogoutOtherDevices(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method LogoutOtherDevices not implemented")
	}
	access, ok := interceptors.GetAccessToken(ctx)
	if !ok || access == "" {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	n, err := s.auth.LogoutOtherDevices(ctx, access)
	if err != nil {
		return nil, s.authErr(ctx, "LogoutOtherDevices", err)
	}
	return structpb.NewStruct(map[string]interface{}{"revoked": n})
}

// ListDevices returns the caller's active sessions, most recently active first.
func (s *AuthServer) ListDevices(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method ListDevices not implemented")
	}
	access, ok := interceptors.GetAccessToken(ctx)
	if !ok || access == "" {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	devices, err := s.auth.ListDevices(ctx, access)
	if err != nil {
		return nil, s.authErr(ctx, "ListDevices", err)
	}
	list := make([]interface{}, 0, len(devices))
	for _, d := range devices {
		sess := d.Session
		list = append(list, map[string]interface{}{
			"session_id":       sess.ID,
			"label":            sess.Client.Label(),
			"browser":          sess.Client.Browser,
			"browser_version":  sess.Client.BrowserVersion,
			"os":               sess.Client.OS,
			"platform":         sess.Client.Platform,
			"class":            string(sess.Client.Class),
			"origin":           sess.OriginAddress,
			"login_method":     string(sess.LoginMethod),
			"created_at":       formatTime(sess.CreatedAt),
			"last_activity_at": formatTime(sess.LastActivityAt),
			"current":          d.Current,
		})
	}
	return structpb.NewStruct(map[string]interface{}{"devices": list})
}

// authErr maps auth errors to gRPC status; unexpected errors are logged and reported as Internal.
func (s *AuthServer) authErr(ctx context.Context, rpc string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidLogin):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, sessionservice.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, "invalid request metadata")
	}
	st := interceptors.AuthStatus(err)
	if status.Code(st) == codes.Internal || status.Code(st) == codes.Unavailable {
		s.log.ErrorContext(ctx, "auth rpc failed", "rpc", rpc, "error", err)
	}
	return st
}

func authResultStruct(res *service.AuthResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"access_token":       res.AccessToken,
		"refresh_token":      res.RefreshToken,
		"access_expires_at":  formatTime(res.AccessExpiresAt),
		"refresh_expires_at": formatTime(res.RefreshExpiresAt),
		"session_id":         res.SessionID,
	})
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
