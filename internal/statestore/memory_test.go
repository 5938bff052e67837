package statestore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestMemory(t *testing.T) (*Memory, *time.Time) {
	t.Helper()
	m := NewMemory()
	t.Cleanup(func() { m.Close() })

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return now }
	return m, &now
}

func TestMemory_SetGet(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	if err := m.Set(ctx, "a", "1", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	val, ok, err := m.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || val != "1" {
		t.Errorf("expected (1, true), got (%s, %v)", val, ok)
	}

	_, ok, _ = m.Get(ctx, "missing")
	if ok {
		t.Error("expected missing key to report ok=false")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	m, now := newTestMemory(t)
	ctx := context.Background()

	if err := m.Set(ctx, "a", "1", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	*now = now.Add(59 * time.Second)
	if _, ok, _ := m.Get(ctx, "a"); !ok {
		t.Fatal("key expired before its ttl")
	}

	*now = now.Add(2 * time.Second)
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Fatal("key still visible past its ttl")
	}
}

func TestMemory_Update_SkipWrite(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	if err := m.Set(ctx, "a", "1", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	val, err := m.Update(ctx, "a", 0, func(current string, exists bool) (string, error) {
		return "", ErrSkipWrite
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if val != "1" {
		t.Errorf("expected current value back, got %s", val)
	}

	stored, _, _ := m.Get(ctx, "a")
	if stored != "1" {
		t.Errorf("skip-write mutated stored value to %s", stored)
	}
}

func TestMemory_Update_AbsentKey(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	var sawExists bool
	_, err := m.Update(ctx, "new", 0, func(current string, exists bool) (string, error) {
		sawExists = exists
		return "v", nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if sawExists {
		t.Error("expected exists=false for a fresh key")
	}
	if val, _, _ := m.Get(ctx, "new"); val != "v" {
		t.Errorf("expected v, got %s", val)
	}
}

func TestMemory_Delete(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	m.Set(ctx, "a", "1", 0)
	m.Set(ctx, "b", "2", 0)
	if err := m.Delete(ctx, "a", "b", "missing"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("a not deleted")
	}
	if _, ok, _ := m.Get(ctx, "b"); ok {
		t.Error("b not deleted")
	}
}

func TestMemory_Update_Concurrent(t *testing.T) {
	m := NewMemory()
	t.Cleanup(func() { m.Close() })
	ctx := context.Background()

	const workers = 20
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := m.Update(ctx, "count", 0, incrementValue); err != nil {
					t.Errorf("update: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	val, _, _ := m.Get(ctx, "count")
	if val != "1000" {
		t.Errorf("expected 1000 after concurrent updates, got %s", val)
	}
}

func TestMemory_Sweep(t *testing.T) {
	m, now := newTestMemory(t)
	ctx := context.Background()

	m.Set(ctx, "short", "1", time.Second)
	m.Set(ctx, "long", "2", time.Hour)

	*now = now.Add(time.Minute)
	m.sweep()

	m.mu.Lock()
	_, shortPresent := m.data["short"]
	_, longPresent := m.data["long"]
	m.mu.Unlock()

	if shortPresent {
		t.Error("expired key survived sweep")
	}
	if !longPresent {
		t.Error("live key removed by sweep")
	}
}
