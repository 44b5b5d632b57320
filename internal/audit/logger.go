// Package audit records security-relevant auth events: a structured log line, an OTel log
// record and a metric increment per event. Account identifiers are always masked.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
	"unicode/utf8"

	"studyhub/backend/internal/telemetry"
)

// Action names a security event.
type Action string

const (
	ActionLoginSucceeded  Action = "login_succeeded"
	ActionLoginFailed     Action = "login_failed"
	ActionLoginThrottled  Action = "login_throttled"
	ActionSessionCreated  Action = "session_created"
	ActionSessionEvicted  Action = "session_evicted"
	ActionSessionRevoked  Action = "session_revoked"
	ActionSessionsRevoked Action = "sessions_revoked"
	ActionTokenRevoked    Action = "token_revoked"
	ActionRefreshRotated  Action = "refresh_rotated"
	ActionRefreshReuse    Action = "refresh_reuse"
	ActionRevokeFailed    Action = "revoke_failed"
	ActionStoreDegraded   Action = "store_degraded"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// Entry is one event. AccountID is the raw identifier; the logger masks it.
type Entry struct {
	Action    Action
	Source    string
	AccountID string
	SessionID string
	Origin    string
	// Metadata is optional JSON attached to the OTel record body.
	Metadata string
	Err      error
}

// AuditLogger records security events. Implementations are best-effort and never fail the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Entry)
	// Degraded records that component failed open for op because the store was unavailable.
	Degraded(ctx context.Context, component, op string, err error)
}

// Logger implements AuditLogger on slog, an EventEmitter and Metrics. Any of them may be nil.
type Logger struct {
	log         *slog.Logger
	emitter     telemetry.EventEmitter
	metrics     *telemetry.Metrics
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger. log defaults to slog.Default().
func NewLogger(log *slog.Logger, emitter telemetry.EventEmitter, metrics *telemetry.Metrics, ipExtractor IPExtractor) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{log: log, emitter: emitter, metrics: metrics, ipExtractor: ipExtractor}
}

// LogEvent writes one event.
func (l *Logger) LogEvent(ctx context.Context, e Entry) {
	origin := e.Origin
	if origin == "" && l.ipExtractor != nil {
		origin = l.ipExtractor(ctx)
	}
	masked := Mask(e.AccountID)
	attrs := []any{
		"action", string(e.Action),
		"source", e.Source,
		"account", masked,
	}
	if e.SessionID != "" {
		attrs = append(attrs, "session_id", e.SessionID)
	}
	if origin != "" {
		attrs = append(attrs, "origin", origin)
	}
	level := slog.LevelInfo
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err.Error())
		level = slog.LevelWarn
	}
	if e.Action == ActionRevokeFailed || e.Action == ActionRefreshReuse {
		level = slog.LevelError
	}
	l.log.Log(ctx, level, "audit", attrs...)

	l.metrics.RecordEvent(ctx, string(e.Action))
	var meta []byte
	if e.Metadata != "" {
		meta = []byte(e.Metadata)
	}
	telemetry.EmitAsync(l.emitter, ctx, &telemetry.Event{
		EventType: string(e.Action),
		Source:    e.Source,
		AccountID: masked,
		SessionID: e.SessionID,
		Origin:    origin,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	})
}

// Degraded logs with the degraded=true marker so fail-open decisions can be alerted on
// separately from normal denials.
func (l *Logger) Degraded(ctx context.Context, component, op string, err error) {
	attrs := []any{"degraded", true, "component", component, "op", op}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	l.log.WarnContext(ctx, "store unavailable; failing open", attrs...)
	l.metrics.RecordDegraded(ctx, component, op)
	telemetry.EmitAsync(l.emitter, ctx, &telemetry.Event{
		EventType: string(ActionStoreDegraded),
		Source:    component,
		CreatedAt: time.Now().UTC(),
	})
}

type nopLogger struct{}

func (nopLogger) LogEvent(context.Context, Entry)                   {}
func (nopLogger) Degraded(context.Context, string, string, error) {}

// Nop returns an AuditLogger that discards everything.
func Nop() AuditLogger { return nopLogger{} }

// Mask renders an account identifier safe for logs: at most the first two characters
// followed by a short SHA-256 fingerprint, so entries for one account still correlate.
func Mask(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	prefix := ""
	if utf8.RuneCountInString(id) > 2 {
		_, n1 := utf8.DecodeRuneInString(id)
		_, n2 := utf8.DecodeRuneInString(id[n1:])
		prefix = id[:n1+n2]
	}
	return prefix + "***#" + hex.EncodeToString(sum[:4])
}
