package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgres creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, nowFunc: time.Now}
	return s, mock
}

func TestPostgresStore_Get_Hit(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT value FROM scope_kv WHERE key = \$1`).
		WithArgs("killswitch:scans").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("enabled"))

	val, ok, err := s.Get(context.Background(), "killswitch:scans")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "enabled", val)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_Miss(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT value FROM scope_kv WHERE key = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Set(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO scope_kv`).
		WithArgs("budget:usage:2026-03-14", `{"tokens":100}`, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Set(context.Background(), "budget:usage:2026-03-14", `{"tokens":100}`, 48*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update_WritesNext(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT value FROM scope_kv WHERE key = \$1 .* FOR UPDATE`).
		WithArgs("count").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("4"))
	mock.ExpectExec(`INSERT INTO scope_kv`).
		WithArgs("count", "5", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	next, err := s.Update(context.Background(), "count", 0, func(current string, exists bool) (string, error) {
		require.True(t, exists)
		require.Equal(t, "4", current)
		return "5", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "5", next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update_SkipWrite(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT value FROM scope_kv WHERE key = \$1 .* FOR UPDATE`).
		WithArgs("count").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("4"))
	mock.ExpectRollback()

	val, err := s.Update(context.Background(), "count", 0, func(current string, exists bool) (string, error) {
		return "", ErrSkipWrite
	})
	require.NoError(t, err)
	assert.Equal(t, "4", val)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update_FreshKey(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT value FROM scope_kv WHERE key = \$1 .* FOR UPDATE`).
		WithArgs("count").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO scope_kv`).
		WithArgs("count", "7", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	next, err := s.Update(context.Background(), "count", time.Hour, func(current string, exists bool) (string, error) {
		require.False(t, exists)
		return "7", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "7", next)
	assert.NoError(t, mock.ExpectationsWereMet())
}
