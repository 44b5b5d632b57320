package main

import (
	"context"
	"crypto"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	attemptdomain "studyhub/backend/internal/attempt/domain"
	attemptservice "studyhub/backend/internal/attempt/service"
	"studyhub/backend/internal/audit"
	"studyhub/backend/internal/config"
	"studyhub/backend/internal/db"
	healthhandler "studyhub/backend/internal/health/handler"
	identitydomain "studyhub/backend/internal/identity/domain"
	identityrepo "studyhub/backend/internal/identity/repository"
	identityservice "studyhub/backend/internal/identity/service"
	"studyhub/backend/internal/kv"
	"studyhub/backend/internal/security"
	"studyhub/backend/internal/server/interceptors"
	sessionservice "studyhub/backend/internal/session/service"
	"studyhub/backend/internal/telemetry"
	tokenservice "studyhub/backend/internal/token/service"
)

// storeHandle is the TTL store chosen by STORE_BACKEND, wrapped with timeouts and a retry.
type storeHandle struct {
	KV      kv.Store
	Pingers map[string]healthhandler.Pinger
	closers []func() error
}

func (h *storeHandle) Close() {
	for _, c := range h.closers {
		_ = c()
	}
}

func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*storeHandle, error) {
	var (
		inner   kv.Store
		closers []func() error
	)
	switch cfg.StoreBackend {
	case config.StoreRedis:
		client := kv.NewRedisClient(kv.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closers = append(closers, client.Close)
		inner = kv.NewRedisStore(client)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis not reachable at startup; auth checks fail open until it is", "addr", cfg.RedisAddr, "error", err)
		}
	case config.StorePostgres:
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, conn.Close)
		inner = kv.NewPostgresStore(conn)
	case config.StoreMemory:
		log.Warn("using in-memory store; state is lost on restart and not shared between instances")
		inner = kv.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	resilient := kv.NewResilient(inner, kv.ResilientOptions{
		OpTimeout:    cfg.OpTimeout(),
		RetryBackoff: cfg.RetryBackoff(),
		Logger:       log,
	})
	return &storeHandle{
		KV:      resilient,
		Pingers: map[string]healthhandler.Pinger{"kv": resilient},
		closers: closers,
	}, nil
}

// authApp is the wired auth subsystem.
type authApp struct {
	Auth     *identityservice.AuthService
	Tokens   *tokenservice.Service
	Sessions *sessionservice.Registry
	Accounts *identityrepo.MemoryAccounts
}

func buildAuth(cfg *config.Config, store kv.Store, log *slog.Logger, emitter telemetry.EventEmitter, metrics *telemetry.Metrics) (*authApp, error) {
	auditLog := audit.NewLogger(log, emitter, metrics, interceptors.ClientIP)

	priv, pub, err := loadSigningKey(cfg, log)
	if err != nil {
		return nil, err
	}
	provider, err := security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		return nil, fmt.Errorf("token provider: %w", err)
	}

	policy := attemptdomain.DefaultPolicy()
	policy.Window = cfg.AttemptWindowDuration()
	ledger, err := attemptservice.NewLedger(store, policy, attemptservice.WithAuditLogger(auditLog))
	if err != nil {
		return nil, fmt.Errorf("attempt ledger: %w", err)
	}
	sessions := sessionservice.NewRegistry(store, sessionservice.Config{
		MaxSessions:   cfg.MaxSessions,
		InactivityTTL: cfg.InactivityTTL(),
	}, sessionservice.WithAuditLogger(auditLog), sessionservice.WithLogger(log))
	tokens := tokenservice.NewService(provider, store, sessions, tokenservice.WithAuditLogger(auditLog))

	hasher := security.NewHasher(cfg.BcryptCost)
	accounts := identityrepo.NewMemoryAccounts()
	if cfg.DevAccountIdentifier != "" {
		hash, err := hasher.Hash([]byte(cfg.DevAccountSecret))
		if err != nil {
			return nil, fmt.Errorf("dev account: %w", err)
		}
		accounts.Put(&identitydomain.Account{
			ID:         uuid.NewString(),
			Identifier: cfg.DevAccountIdentifier,
			SecretHash: hash,
		})
		log.Info("seeded development account", "account", audit.Mask(cfg.DevAccountIdentifier))
	}
	verifier := identityservice.NewPasswordVerifier(accounts, hasher)

	return &authApp{
		Auth:     identityservice.NewAuthService(ledger, verifier, sessions, tokens, auditLog),
		Tokens:   tokens,
		Sessions: sessions,
		Accounts: accounts,
	}, nil
}

func loadSigningKey(cfg *config.Config, log *slog.Logger) (crypto.Signer, crypto.PublicKey, error) {
	if cfg.JWTPrivateKey == "" {
		log.Warn("JWT_PRIVATE_KEY not set; using an ephemeral signing key")
		return security.GenerateSigningKey()
	}
	priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("jwt keys: %w", err)
	}
	return priv, pub, nil
}
