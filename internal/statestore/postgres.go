package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool abstracts the subset of pgxpool.Pool the store needs, so tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgx. Used for cluster deployments
// where governance counters must be shared across API replicas.
type PostgresStore struct {
	pool Pool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scope_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at TIMESTAMPTZ
);`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "statestore: postgres parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "statestore: postgres connect")
	}

	s := &PostgresStore{pool: pool, nowFunc: time.Now}
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "statestore: postgres migrate")
	}
	return s, nil
}

func (s *PostgresStore) expiry(ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return s.nowFunc().Add(ttl)
}

// Get implements Store. Expiry is enforced in the query.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM scope_kv WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "statestore: postgres get")
	}
	return value, true, nil
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scope_kv (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, s.expiry(ttl),
	)
	if err != nil {
		return eris.Wrap(err, "statestore: postgres set")
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := s.pool.Exec(ctx, `DELETE FROM scope_kv WHERE key = $1`, key); err != nil {
			return eris.Wrap(err, "statestore: postgres delete")
		}
	}
	return nil
}

// Update implements Store. The row lock taken by SELECT ... FOR UPDATE
// serializes concurrent read-modify-writes on the same key.
func (s *PostgresStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "statestore: postgres begin")
	}
	defer tx.Rollback(ctx)

	var current string
	exists := true
	err = tx.QueryRow(ctx,
		`SELECT value FROM scope_kv WHERE key = $1 AND (expires_at IS NULL OR expires_at > now()) FOR UPDATE`,
		key,
	).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		exists = false
		current = ""
	case err != nil:
		return "", eris.Wrap(err, "statestore: postgres read for update")
	}

	next, err := fn(current, exists)
	if err != nil {
		if errors.Is(err, ErrSkipWrite) {
			return current, nil
		}
		return "", err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO scope_kv (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, next, s.expiry(ttl),
	); err != nil {
		return "", eris.Wrap(err, "statestore: postgres write")
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "statestore: postgres commit")
	}
	return next, nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
