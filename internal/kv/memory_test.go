package kv

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMemoryStore_SetGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.SetWithTTL(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	v, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "v" {
		t.Errorf("value = %q, want %q", v, "v")
	}
}

func TestMemoryStore_Get_Missing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	clk := newFakeClock()
	store := NewMemoryStore(WithClock(clk.Now))
	ctx := context.Background()

	_ = store.SetWithTTL(ctx, "k", []byte("v"), time.Minute)
	clk.Advance(59 * time.Second)
	if _, err := store.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	clk.Advance(time.Second)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get at expiry: want ErrNotFound, got %v", err)
	}
	if n := store.Len(); n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}

func TestMemoryStore_SetWithTTL_RejectsNonPositive(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SetWithTTL(context.Background(), "k", nil, 0); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("want ErrInvalidTTL, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.SetWithTTL(ctx, "k", []byte("v"), time.Minute)
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Update_Mutations(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Update(ctx, "k", func(cur []byte, found bool) (Mutation, error) {
		if found {
			t.Error("found should be false for missing key")
		}
		return Put([]byte("1"), time.Minute), nil
	})
	if err != nil {
		t.Fatalf("Update put: %v", err)
	}

	err = store.Update(ctx, "k", func(cur []byte, found bool) (Mutation, error) {
		if !found || string(cur) != "1" {
			t.Errorf("cur = %q found = %v, want \"1\" true", cur, found)
		}
		return Keep(), nil
	})
	if err != nil {
		t.Fatalf("Update keep: %v", err)
	}
	if v, _ := store.Get(ctx, "k"); string(v) != "1" {
		t.Errorf("after Keep value = %q, want 1", v)
	}

	if err := store.Update(ctx, "k", func([]byte, bool) (Mutation, error) { return Remove(), nil }); err != nil {
		t.Fatalf("Update remove: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after Remove: want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Update_CallerErrorAborts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.SetWithTTL(ctx, "k", []byte("keep"), time.Minute)
	sentinel := errors.New("stop")

	err := store.Update(ctx, "k", func([]byte, bool) (Mutation, error) {
		return Put([]byte("changed"), time.Minute), sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Update: want sentinel, got %v", err)
	}
	if v, _ := store.Get(ctx, "k"); string(v) != "keep" {
		t.Errorf("value = %q, want unchanged", v)
	}
}

func TestMemoryStore_Update_ConcurrentIncrementsAreNotLost(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	const workers = 64

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, "counter", func(cur []byte, found bool) (Mutation, error) {
				n := 0
				if found {
					n = int(cur[0])
				}
				return Put([]byte{byte(n + 1)}, time.Minute), nil
			})
		}()
	}
	wg.Wait()

	v, err := store.Get(ctx, "counter")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if int(v[0]) != workers {
		t.Errorf("counter = %d, want %d", v[0], workers)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	buf := []byte("abc")
	_ = store.SetWithTTL(ctx, "k", buf, time.Minute)
	buf[0] = 'z'
	v, _ := store.Get(ctx, "k")
	v[1] = 'z'
	again, _ := store.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated through alias: %q", again)
	}
}
