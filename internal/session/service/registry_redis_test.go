package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"studyhub/backend/internal/kv"
)

// newRedisRegistry wires the registry the way the server does: Redis behind the resilient
// wrapper with its default timeout and retry.
func newRedisRegistry(t *testing.T) (*Registry, *recordingAudit) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := kv.NewRedisClient(kv.RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rec := &recordingAudit{}
	store := kv.NewResilient(kv.NewRedisStore(client), kv.ResilientOptions{})
	return NewRegistry(store, Config{}, WithAuditLogger(rec)), rec
}

func TestCreateSession_RedisBurstRespectsCap(t *testing.T) {
	reg, rec := newRedisRegistry(t)
	const logins = 40

	var created, conflicted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.CreateSession(context.Background(), "acct", meta())
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, kv.ErrConflict):
				conflicted.Add(1)
			default:
				t.Errorf("CreateSession: %v", err)
			}
		}()
	}
	wg.Wait()

	if rec.degraded != 0 {
		t.Errorf("degraded = %d, want 0 on a reachable store", rec.degraded)
	}
	if got := created.Load() + conflicted.Load(); got != logins {
		t.Fatalf("outcomes = %d, want %d", got, logins)
	}
	active, err := reg.FindActiveSessions(context.Background(), "acct")
	if err != nil {
		t.Fatalf("FindActiveSessions: %v", err)
	}
	want := int(created.Load())
	if want > DefaultMaxSessions {
		want = DefaultMaxSessions
	}
	if len(active) != want {
		t.Errorf("active = %d, want %d (created %d)", len(active), want, created.Load())
	}
}
