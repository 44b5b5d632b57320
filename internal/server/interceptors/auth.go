package interceptors

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"studyhub/backend/internal/platform/autherr"
	tokenservice "studyhub/backend/internal/token/service"
)

const bearerPrefix = "bearer "

// TokenValidator validates an access token and returns the identity it carries.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*tokenservice.Claims, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer (access) token
// from gRPC metadata and sets account_id, session_id and the token in context for protected RPCs.
// publicMethods is the set of full method names that do not require a Bearer token
// (e.g. AuthService Login, Refresh; grpc.health.v1.Health Check).
func AuthUnary(tokens TokenValidator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := authenticate(ctx, tokens, publicMethods[info.FullMethod])
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthStream is the streaming counterpart of AuthUnary.
func AuthStream(tokens TokenValidator, publicMethods map[string]bool) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), tokens, publicMethods[info.FullMethod])
		if err != nil {
			return err
		}
		return handler(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticate(ctx context.Context, tokens TokenValidator, public bool) (context.Context, error) {
	token := extractBearer(ctx)
	if token == "" {
		if public {
			return ctx, nil
		}
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	claims, err := tokens.ValidateAccessToken(ctx, token)
	if err != nil {
		if public {
			return ctx, nil
		}
		return nil, AuthStatus(err)
	}
	return WithIdentity(ctx, claims.AccountID, claims.SessionID, token), nil
}

// AuthStatus maps an error from the auth components to a gRPC status. Credential and token
// failures share one message so callers cannot tell them apart.
func AuthStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if te, ok := autherr.IsThrottled(err); ok {
		return status.Error(codes.ResourceExhausted, te.Error())
	}
	switch {
	case errors.Is(err, autherr.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case errors.Is(err, autherr.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "token expired")
	case errors.Is(err, autherr.ErrTokenMalformed),
		errors.Is(err, autherr.ErrTokenRevoked),
		errors.Is(err, autherr.ErrSessionInvalid):
		return status.Error(codes.Unauthenticated, "missing or invalid authorization")
	case errors.Is(err, autherr.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, "service temporarily unavailable")
	case errors.Is(err, autherr.ErrStoreConflict):
		return status.Error(codes.Aborted, "concurrent update, retry")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	}
	return status.Error(codes.Internal, "internal error")
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }
