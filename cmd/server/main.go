// server runs the StudyHub auth gRPC server: AuthService and grpc.health.v1 behind the
// bearer-token and request telemetry interceptors.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"studyhub/backend/internal/config"
	"studyhub/backend/internal/server"
	"studyhub/backend/internal/server/interceptors"
	"studyhub/backend/internal/telemetry"
	otelsetup "studyhub/backend/internal/telemetry/otel"
)

const serviceName = "studyhub-auth"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn("otel shutdown", "error", err)
		}
	}()
	emitter := otelsetup.NewEventEmitter(providers.LoggerProvider)
	metrics, err := telemetry.NewMetrics(providers.MeterProvider)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	store, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	app, err := buildAuth(cfg, store.KV, log, emitter, metrics)
	if err != nil {
		return err
	}

	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.TelemetryUnary(log, emitter, map[string]bool{"/grpc.health.v1.Health/Check": true}),
			interceptors.AuthUnary(app.Tokens, server.PublicMethods()),
		),
		grpc.ChainStreamInterceptor(
			interceptors.AuthStream(app.Tokens, server.PublicMethods()),
		),
	)
	server.RegisterServices(s, server.Deps{
		Auth:          app.Auth,
		HealthPingers: store.Pingers,
		Logger:        log,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("gRPC server listening", "addr", cfg.GRPCAddr, "store", cfg.StoreBackend)
		serveErr <- s.Serve(lis)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down gRPC server")
	s.GracefulStop()
	// Let in-flight async telemetry emits finish before providers shut down.
	time.Sleep(telemetry.ShutdownDrainDuration)
	log.Info("gRPC server stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
