package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"studyhub/backend/internal/config"
	"studyhub/backend/internal/identity/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		StoreBackend:         config.StoreMemory,
		JWTIssuer:            "studyhub-auth",
		JWTAudience:          "studyhub-api",
		JWTAccessTTL:         "15m",
		JWTRefreshTTL:        "168h",
		MaxSessions:          5,
		SessionInactivityTTL: "720h",
		AttemptWindow:        "1h",
		BcryptCost:           4,
		DevAccountIdentifier: "dev@studyhub.test",
		DevAccountSecret:     "dev-secret",
	}
}

func TestBuildStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.StoreBackend = config.StoreRedis
	cfg.RedisAddr = mr.Addr()

	h, err := buildStore(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildStore: %v", err)
	}
	defer h.Close()
	if err := h.Pingers["kv"].Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestBuildStore_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = "etcd"
	if _, err := buildStore(context.Background(), cfg, discardLogger()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestBuildAuth_DevAccountLogin(t *testing.T) {
	cfg := testConfig()
	log := discardLogger()
	h, err := buildStore(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("buildStore: %v", err)
	}
	defer h.Close()

	app, err := buildAuth(cfg, h.KV, log, nil, nil)
	if err != nil {
		t.Fatalf("buildAuth: %v", err)
	}
	ctx := context.Background()
	res, err := app.Auth.Login(ctx, service.LoginRequest{
		Identifier: "dev@studyhub.test",
		Secret:     "dev-secret",
		Origin:     "127.0.0.1",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := app.Tokens.ValidateAccessToken(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.SessionID != res.SessionID {
		t.Errorf("session = %q, want %q", claims.SessionID, res.SessionID)
	}
}

func TestNewLogger_Level(t *testing.T) {
	log := newLogger("warn")
	if log.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !newLogger("bogus").Enabled(context.Background(), slog.LevelInfo) {
		t.Error("invalid level should fall back to info")
	}
}
