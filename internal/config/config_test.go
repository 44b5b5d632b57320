package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.StoreBackend != StoreMemory {
		t.Errorf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.JWTIssuer != "studyhub-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "studyhub-auth")
	}
	if cfg.JWTAudience != "studyhub-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "studyhub-api")
	}
	if cfg.MaxSessions != 5 {
		t.Errorf("MaxSessions = %d, want 5", cfg.MaxSessions)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 7*24*time.Hour {
		t.Errorf("RefreshTTL = %v", cfg.RefreshTTL())
	}
	if cfg.InactivityTTL() != 30*24*time.Hour {
		t.Errorf("InactivityTTL = %v", cfg.InactivityTTL())
	}
	if cfg.AttemptWindowDuration() != time.Hour {
		t.Errorf("AttemptWindow = %v", cfg.AttemptWindowDuration())
	}
	if cfg.OpTimeout() != 250*time.Millisecond || cfg.RetryBackoff() != 50*time.Millisecond {
		t.Errorf("store timings = %v / %v", cfg.OpTimeout(), cfg.RetryBackoff())
	}
	if cfg.OTLPEndpoint != "" {
		t.Error("OTLP export should be off by default")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":9090")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")
	os.Setenv("MAX_SESSIONS", "3")
	os.Setenv("STORE_BACKEND", "Redis")
	os.Setenv("REDIS_ADDR", "cache:6379")
	os.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.MaxSessions != 3 {
		t.Errorf("MaxSessions = %d, want 3", cfg.MaxSessions)
	}
	if cfg.StoreBackend != StoreRedis || cfg.RedisAddr != "cache:6379" || cfg.RedisDB != 2 {
		t.Errorf("redis config = %q %q %d", cfg.StoreBackend, cfg.RedisAddr, cfg.RedisDB)
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"valid middle", "12", 12, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false}, // Should default to 12
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("GRPC_ADDR", ":8080")
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_Rejects(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{"unknown backend", map[string]string{"STORE_BACKEND": "etcd"}, "unknown STORE_BACKEND"},
		{"postgres without dsn", map[string]string{"STORE_BACKEND": "postgres"}, "DATABASE_URL"},
		{"memory in production", map[string]string{"APP_ENV": "production", "JWT_PRIVATE_KEY": "k"}, "STORE_BACKEND=memory"},
		{"production without key", map[string]string{"APP_ENV": "production", "STORE_BACKEND": "redis"}, "JWT_PRIVATE_KEY"},
		{"dev account in production", map[string]string{
			"APP_ENV": "production", "STORE_BACKEND": "redis", "JWT_PRIVATE_KEY": "k", "DEV_ACCOUNT_IDENTIFIER": "a",
		}, "DEV_ACCOUNT_IDENTIFIER"},
		{"zero sessions", map[string]string{"MAX_SESSIONS": "0"}, "MAX_SESSIONS"},
		{"bad duration", map[string]string{"ATTEMPT_WINDOW": "soon"}, "ATTEMPT_WINDOW"},
		{"negative ttl", map[string]string{"JWT_ACCESS_TTL": "-5m"}, "JWT_ACCESS_TTL"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("GRPC_ADDR", ":8080")
			for k, v := range tc.env {
				os.Setenv(k, v)
			}
			cfg, err := Load()
			if err == nil {
				t.Fatal("Load should return error")
			}
			if cfg != nil {
				t.Error("Load should return nil config on error")
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Errorf("error = %q, want mention of %q", err, tc.msg)
			}
		})
	}
}

func TestLoad_PostgresBackend(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":8080")
	os.Setenv("STORE_BACKEND", "postgres")
	os.Setenv("DATABASE_URL", "postgres://localhost/studyhub?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != StorePostgres {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
}

func TestDurationHelpers_FallBack(t *testing.T) {
	cfg := &Config{JWTAccessTTL: "invalid", JWTRefreshTTL: "0", SessionInactivityTTL: "-1h"}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want default", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL = %v, want default", cfg.RefreshTTL())
	}
	if cfg.InactivityTTL() != 720*time.Hour {
		t.Errorf("InactivityTTL = %v, want default", cfg.InactivityTTL())
	}
}

func TestRefreshTTL_ValidDuration(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":8080")
	os.Setenv("JWT_REFRESH_TTL", "336h") // 14 days in hours

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ttl := cfg.RefreshTTL(); ttl != 14*24*time.Hour {
		t.Errorf("RefreshTTL = %v, want %v", ttl, 14*24*time.Hour)
	}
}

func TestIsProduction(t *testing.T) {
	if !(&Config{Env: "Production"}).IsProduction() {
		t.Error("Production should match case-insensitively")
	}
	if (&Config{Env: "development"}).IsProduction() {
		t.Error("development is not production")
	}
}
