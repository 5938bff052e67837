// Package statestore provides the shared key-value state used by the
// governance components and admin tooling. Every mutation is atomic per key,
// values carry an optional expiry, and three backends (in-process memory,
// sqlite, postgres) sit behind the same interface so callers never need to
// know which one they got.
package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sponsorscope/scope/internal/config"
)

// ErrSkipWrite is returned by an UpdateFunc to leave the stored value
// untouched without failing the Update call.
var ErrSkipWrite = errors.New("statestore: skip write")

// UpdateFunc computes the next value for a key inside an atomic
// read-modify-write. exists is false when the key is absent or expired.
type UpdateFunc func(current string, exists bool) (next string, err error)

// Store is the shared state abstraction. A ttl <= 0 means no expiry.
type Store interface {
	// Get returns the value for key, reporting absence (or expiry) via ok.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes value under key with the given ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Update runs fn atomically against the current value of key and writes
	// the returned next value. If fn returns ErrSkipWrite nothing is written
	// and Update returns the current value with a nil error.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Open constructs the store named by cfg.Driver.
func Open(ctx context.Context, cfg config.StateConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("statestore: unknown driver %q", cfg.Driver)
	}
}
