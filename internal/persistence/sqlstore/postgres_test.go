package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sessionboard/internal/persistence"
)

func newPostgresMock(t *testing.T) (*ConnectionPool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := DefaultPostgresConfig("postgres://ignored")
	cfg.RetryBase = time.Millisecond
	return NewConnectionPool(db, cfg), mock
}

func TestRebind(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT * FROM t WHERE a = ?", "SELECT * FROM t WHERE a = $1"},
		{"INSERT INTO t (a, b, c) VALUES (?, ?, ?)", "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rebind(tt.in))
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name     string
		pgErr    *pgconn.PgError
		sentinel error
		field    string
	}{
		{"duplicate name", &pgconn.PgError{Code: "23505", ConstraintName: "actors_lower_name_key"}, persistence.ErrDuplicate, "name"},
		{"duplicate email", &pgconn.PgError{Code: "23505", ConstraintName: "actors_lower_email_key"}, persistence.ErrDuplicate, "email"},
		{"duplicate membership", &pgconn.PgError{Code: "23505", ConstraintName: "memberships_pkey"}, persistence.ErrDuplicate, "membership"},
		{"foreign key", &pgconn.PgError{Code: "23503"}, persistence.ErrForeignKeyViolation, ""},
		{"check", &pgconn.PgError{Code: "23514"}, persistence.ErrConstraintViolation, ""},
		{"serialization", &pgconn.PgError{Code: "40001"}, persistence.ErrTransient, ""},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, persistence.ErrTransient, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.pgErr)
			require.ErrorIs(t, err, tt.sentinel)
			if tt.field != "" {
				field, ok := persistence.DuplicateField(err)
				require.True(t, ok)
				assert.Equal(t, tt.field, field)
			}
		})
	}
}

func TestMapErrorPassesUnknownErrorsThrough(t *testing.T) {
	boom := errors.New("boom")
	assert.Same(t, boom, mapError(boom))
	assert.NoError(t, mapError(nil))
}

func TestPostgresJoinLocksSessionRow(t *testing.T) {
	pool, mock := newPostgresMock(t)
	repo := NewMembershipRepository(pool)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM sessions WHERE id = \$1 FOR UPDATE`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
	mock.ExpectExec(`INSERT INTO memberships .* ON CONFLICT \(actor_id, session_id\) DO NOTHING`).
		WithArgs("a1", formatTime(now), "s1", false, formatTime(now), "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inserted, err := repo.AddMembershipWithinLimit(context.Background(), persistence.Membership{
		ActorID:   "a1",
		SessionID: "s1",
		JoinedAt:  now,
	}, now)
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJoinRefusedWhenNoRowInserted(t *testing.T) {
	pool, mock := newPostgresMock(t)
	repo := NewMembershipRepository(pool)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
	mock.ExpectExec(`INSERT INTO memberships`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := repo.AddMembershipWithinLimit(context.Background(), persistence.Membership{
		ActorID:   "a1",
		SessionID: "s1",
		JoinedAt:  now,
	}, now)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJoinMissingSession(t *testing.T) {
	pool, mock := newPostgresMock(t)
	repo := NewMembershipRepository(pool)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.AddMembershipWithinLimit(context.Background(), persistence.Membership{
		ActorID:   "a1",
		SessionID: "missing",
		JoinedAt:  now,
	}, now)
	require.ErrorIs(t, err, persistence.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryingTransactionRetriesTransientFailures(t *testing.T) {
	pool, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM auth_sessions`).
		WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM auth_sessions WHERE actor_id = \$1`).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	attempts := 0
	err := pool.WithRetryingTransaction(context.Background(), func(ctx context.Context, tx DBTX) error {
		attempts++
		_, err := tx.ExecContext(ctx, `DELETE FROM auth_sessions WHERE actor_id = ?`, "a1")
		return mapError(err)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryingTransactionDoesNotRetryPermanentFailures(t *testing.T) {
	pool, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO actors`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "actors_lower_name_key"})
	mock.ExpectRollback()

	attempts := 0
	err := pool.WithRetryingTransaction(context.Background(), func(ctx context.Context, tx DBTX) error {
		attempts++
		_, err := tx.ExecContext(ctx, `INSERT INTO actors (id) VALUES (?)`, "a1")
		return mapError(err)
	})
	require.ErrorIs(t, err, persistence.ErrDuplicate)
	assert.Equal(t, 1, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTakeTokenUsesNumberedPlaceholders(t *testing.T) {
	pool, mock := newPostgresMock(t)
	repo := NewTokenRepository(pool)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`DELETE FROM expiring_tokens WHERE key = \$1 AND expires_at > \$2 RETURNING value`).
		WithArgs("forget-password:abc", formatTime(now)).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("actor-1"))

	value, err := repo.TakeToken(context.Background(), "forget-password:abc", now)
	require.NoError(t, err)
	assert.Equal(t, "actor-1", value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionWritesAreGuarded(t *testing.T) {
	pool, mock := newPostgresMock(t)
	repo := NewSessionRepository(pool)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE sessions\s+SET title = \$1, body = \$2, voice_channel_url = \$3, updated_at = \$4\s+WHERE id = \$5 AND is_cancelled = \$6 AND end_at > \$7`).
		WithArgs("t", "b", sqlmock.AnyArg(), formatTime(now), "s1", false, formatTime(now)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE sessions\s+SET is_cancelled = \$1, updated_at = \$2\s+WHERE id = \$3 AND end_at > \$4`).
		WithArgs(true, formatTime(now), "s1", formatTime(now)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	written, err := repo.UpdateSessionDetails(context.Background(), persistence.Session{ID: "s1", Title: "t", Body: "b"}, now)
	require.NoError(t, err)
	assert.False(t, written)

	cancelled, err := repo.CancelSession(context.Background(), "s1", now)
	require.NoError(t, err)
	assert.True(t, cancelled)
	require.NoError(t, mock.ExpectationsWereMet())
}
