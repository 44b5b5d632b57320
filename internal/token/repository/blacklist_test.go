package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"studyhub/backend/internal/kv"
)

func TestBlacklist_AddContains(t *testing.T) {
	b := NewBlacklist(kv.NewMemoryStore())
	ctx := context.Background()

	if ok, err := b.Contains(ctx, "fp"); err != nil || ok {
		t.Fatalf("Contains before Add = %v, %v", ok, err)
	}
	if err := b.Add(ctx, "fp", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ok, err := b.Contains(ctx, "fp"); err != nil || !ok {
		t.Fatalf("Contains after Add = %v, %v", ok, err)
	}
}

func TestBlacklist_EntryExpiresWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := kv.NewRedisClient(kv.RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	b := NewBlacklist(kv.NewRedisStore(client))
	ctx := context.Background()

	if err := b.Add(ctx, "fp", 90*time.Second); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ttl := mr.TTL(keyPrefix + "fp"); ttl != 90*time.Second {
		t.Errorf("TTL = %v, want 90s", ttl)
	}
	mr.FastForward(91 * time.Second)
	if ok, _ := b.Contains(ctx, "fp"); ok {
		t.Error("entry should expire with the token")
	}
}

func TestBlacklist_AddIfAbsentHasOneWinner(t *testing.T) {
	b := NewBlacklist(kv.NewMemoryStore())
	const callers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := b.AddIfAbsent(context.Background(), "fp", time.Minute)
			if err != nil {
				t.Errorf("AddIfAbsent: %v", err)
				return
			}
			if added {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Errorf("winners = %d, want 1", got)
	}
}
