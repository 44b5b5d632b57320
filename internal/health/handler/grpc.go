package handler

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// pingTimeout bounds each dependency check.
const pingTimeout = 2 * time.Second

// Pinger is a dependency checked for readiness (e.g. the TTL store or *pgxpool.Pool adapter).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server implements grpc.health.v1.Health. Check reports SERVING only when every pinger
// answers; unknown service names get NotFound.
type Server struct {
	healthpb.UnimplementedHealthServer
	pingers  map[string]Pinger
	services map[string]bool
	log      *slog.Logger
}

// NewServer returns a health server covering the overall server ("") and the named services.
// pingers maps a dependency name (used in logs) to its check; nil pingers are skipped.
func NewServer(pingers map[string]Pinger, services []string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	known := map[string]bool{"": true}
	for _, s := range services {
		known[s] = true
	}
	return &Server{pingers: pingers, services: known, log: log}
}

// Check returns the serving status of req.Service.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if !s.services[req.GetService()] {
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	for name, p := range s.pingers {
		if p == nil {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := p.Ping(pctx)
		cancel()
		if err != nil {
			s.log.WarnContext(ctx, "health: dependency check failed", "dependency", name, "error", err)
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
