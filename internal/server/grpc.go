package server

import (
	"log/slog"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "studyhub/backend/internal/health/handler"
	identityhandler "studyhub/backend/internal/identity/handler"
)

// Deps holds service dependencies for gRPC handlers.
type Deps struct {
	// Auth is the auth flow behind AuthService. If nil, auth RPCs return Unimplemented.
	Auth identityhandler.AuthAPI
	// HealthPingers are the dependencies checked by the health service (e.g. the TTL store).
	HealthPingers map[string]healthhandler.Pinger
	// Logger is used by handlers for unexpected errors. If nil, slog.Default is used.
	Logger *slog.Logger
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - studyhub.auth.v1.AuthService → internal/identity/handler
//   - grpc.health.v1.Health        → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	identityhandler.RegisterAuthServiceServer(s, identityhandler.NewAuthServer(deps.Auth, deps.Logger))
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.HealthPingers, []string{identityhandler.ServiceName}, deps.Logger))
}

// PublicMethods are the full method names callable without a bearer token.
func PublicMethods() map[string]bool {
	public := identityhandler.PublicMethods()
	public[healthpb.Health_Check_FullMethodName] = true
	public[healthpb.Health_Watch_FullMethodName] = true
	return public
}
