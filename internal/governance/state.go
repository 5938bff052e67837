// Package governance implements the request admission chain: kill switch,
// three-tier rate limiting, rapid-resubmission detection, and daily budget
// ceilings, composed into an ordered pipeline.
package governance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sponsorscope/scope/internal/resilience"
	"github.com/sponsorscope/scope/internal/statestore"
)

// degradableStore routes reads and writes to the shared state store, falling
// back to an in-process store when the backend errors or its circuit breaker
// is open. Governance checks must never fail a request because the backend is
// down; they degrade to process-local counters instead.
type degradableStore struct {
	primary  statestore.Store
	breaker  *resilience.Breaker
	fallback *statestore.Memory
}

func newDegradableStore(primary statestore.Store, breaker *resilience.Breaker) *degradableStore {
	return &degradableStore{
		primary:  primary,
		breaker:  breaker,
		fallback: statestore.NewMemory(),
	}
}

func (d *degradableStore) update(ctx context.Context, key string, ttl time.Duration, fn statestore.UpdateFunc) (string, error) {
	val, err := resilience.ExecuteVal(ctx, d.breaker, func(ctx context.Context) (string, error) {
		return d.primary.Update(ctx, key, ttl, fn)
	})
	if err == nil {
		return val, nil
	}
	// The update closures in this package never return their own errors, so
	// anything here is a backend fault (or an open breaker) and the same fn
	// can be replayed against the fallback.
	zap.L().Warn("state store unavailable, using in-process fallback",
		zap.String("key", key), zap.Error(err))
	return d.fallback.Update(ctx, key, ttl, fn)
}

func (d *degradableStore) get(ctx context.Context, key string) (string, bool, error) {
	type result struct {
		val string
		ok  bool
	}
	res, err := resilience.ExecuteVal(ctx, d.breaker, func(ctx context.Context) (result, error) {
		val, ok, err := d.primary.Get(ctx, key)
		return result{val, ok}, err
	})
	if err == nil {
		return res.val, res.ok, nil
	}
	zap.L().Warn("state store unavailable, using in-process fallback",
		zap.String("key", key), zap.Error(err))
	return d.fallback.Get(ctx, key)
}

func (d *degradableStore) set(ctx context.Context, key, value string, ttl time.Duration) error {
	err := d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.primary.Set(ctx, key, value, ttl)
	})
	if err == nil {
		return nil
	}
	zap.L().Warn("state store unavailable, using in-process fallback",
		zap.String("key", key), zap.Error(err))
	return d.fallback.Set(ctx, key, value, ttl)
}

// Healthy reports whether the primary backend is currently usable.
func (d *degradableStore) healthy(ctx context.Context) bool {
	err := d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.primary.Ping(ctx)
	})
	return err == nil
}
