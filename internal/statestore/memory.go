package statestore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Memory is the in-process fallback store. Safe for concurrent use; all
// operations hold a single mutex, which is fine at the request rates the
// admission path sees.
type Memory struct {
	mu   sync.Mutex
	data map[string]memEntry

	// nowFunc allows test injection of time.
	nowFunc func() time.Time

	stop chan struct{}
	once sync.Once
}

type memEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// NewMemory creates an in-process store with a background expiry sweep.
func NewMemory() *Memory {
	m := &Memory{
		data:    make(map[string]memEntry),
		nowFunc: time.Now,
		stop:    make(chan struct{}),
	}
	go m.sweepLoop(time.Minute)
	return m
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFunc()
	for k, e := range m.data {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			delete(m.data, k)
		}
	}
}

// live returns the entry for key if present and unexpired, dropping it otherwise.
// Caller must hold the mutex.
func (m *Memory) live(key string) (memEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(m.nowFunc()) {
		delete(m.data, key)
		return memEntry{}, false
	}
	return e, true
}

func (m *Memory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.nowFunc().Add(ttl)
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memEntry{value: value, expiresAt: m.expiry(ttl)}
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Update implements Store.
func (m *Memory) Update(_ context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.live(key)
	next, err := fn(e.value, exists)
	if err != nil {
		if errors.Is(err, ErrSkipWrite) {
			return e.value, nil
		}
		return "", err
	}

	m.data[key] = memEntry{value: next, expiresAt: m.expiry(ttl)}
	return next, nil
}

// Ping implements Store. The in-process store is always reachable.
func (m *Memory) Ping(context.Context) error { return nil }

// Close stops the expiry sweep.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}
