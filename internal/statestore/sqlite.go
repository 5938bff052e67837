package statestore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. Suitable for
// single-host deployments where several processes (the API server and the
// govern CLI) share governance state through a file.
type SQLiteStore struct {
	db *sql.DB

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewSQLite opens a SQLite database at the given path. Transactions open
// IMMEDIATE so writers take the write lock up front, and the pragmas ride the
// DSN so every pooled connection gets them, not just the first.
func NewSQLite(path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "statestore: sqlite open")
	}

	const migration = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER
);`
	if _, err := db.Exec(migration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "statestore: sqlite migrate")
	}

	return &SQLiteStore{db: db, nowFunc: time.Now}, nil
}

func (s *SQLiteStore) expiryMillis(ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return s.nowFunc().Add(ttl).UnixMilli()
}

// Get implements Store. Expired rows read as absent and are removed.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expires sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv WHERE key = ?`, key,
	).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "statestore: sqlite get")
	}
	if expires.Valid && expires.Int64 <= s.nowFunc().UnixMilli() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		return "", false, nil
	}
	return value, true, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, s.expiryMillis(ttl),
	)
	if err != nil {
		return eris.Wrap(err, "statestore: sqlite set")
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return eris.Wrap(err, "statestore: sqlite delete")
		}
	}
	return nil
}

// Update implements Store. The connection opens transactions IMMEDIATE (see
// NewSQLite), so the write lock is held from BEGIN and the read-modify-write
// cannot interleave with another writer.
func (s *SQLiteStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "statestore: sqlite begin")
	}
	defer tx.Rollback()

	var current string
	var expires sql.NullInt64
	exists := true
	err = tx.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv WHERE key = ?`, key,
	).Scan(&current, &expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists = false
		current = ""
	case err != nil:
		return "", eris.Wrap(err, "statestore: sqlite read for update")
	}
	if exists && expires.Valid && expires.Int64 <= s.nowFunc().UnixMilli() {
		exists = false
		current = ""
	}

	next, err := fn(current, exists)
	if err != nil {
		if errors.Is(err, ErrSkipWrite) {
			return current, nil
		}
		return "", err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, next, s.expiryMillis(ttl),
	); err != nil {
		return "", eris.Wrap(err, "statestore: sqlite write")
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "statestore: sqlite commit")
	}
	return next, nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
