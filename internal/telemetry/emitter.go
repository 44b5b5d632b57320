// Package telemetry defines security event emission and auth metrics.
package telemetry

import (
	"context"
	"time"
)

// Event is one security-relevant occurrence in the auth subsystem (throttle, eviction,
// revocation, degraded store). AccountID must already be masked by the caller.
type Event struct {
	EventType string
	Source    string
	AccountID string
	SessionID string
	Origin    string
	Metadata  []byte // JSON; optional
	CreatedAt time.Time
}

// EventEmitter emits events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
