package sqlstore

import (
	"context"
	"time"

	"github.com/example/sessionboard/internal/persistence"
)

// TokenRepository implements persistence.TokenRepository on the
// expiring_tokens table.
type TokenRepository struct {
	pool *ConnectionPool
}

// NewTokenRepository creates a repository backed by pool.
func NewTokenRepository(pool *ConnectionPool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// PutToken stores value under key until expiresAt. Rows whose expiry has
// passed are purged first, so only a live key can collide and report a
// *persistence.DuplicateError.
func (r *TokenRepository) PutToken(ctx context.Context, key, value string, now, expiresAt time.Time) error {
	if key == "" {
		return persistence.ErrConstraintViolation
	}
	return r.pool.WithRetryingTransaction(ctx, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM expiring_tokens WHERE key = ? AND expires_at <= ?`,
			key, formatTime(now),
		); err != nil {
			return mapError(err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expiring_tokens (key, value, expires_at) VALUES (?, ?, ?)`,
			key, value, formatTime(expiresAt),
		)
		return mapError(err)
	})
}

// TakeToken deletes a live key and returns its value in a single statement,
// so concurrent callers cannot both observe it.
func (r *TokenRepository) TakeToken(ctx context.Context, key string, now time.Time) (string, error) {
	if key == "" {
		return "", persistence.ErrNotFound
	}
	var value string
	err := r.pool.conn().QueryRowContext(ctx,
		`DELETE FROM expiring_tokens WHERE key = ? AND expires_at > ? RETURNING value`,
		key, formatTime(now),
	).Scan(&value)
	if err != nil {
		return "", mapError(err)
	}
	return value, nil
}

// PurgeExpiredTokens removes every token that expired on or before now.
func (r *TokenRepository) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.conn().ExecContext(ctx,
		`DELETE FROM expiring_tokens WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected()
}
