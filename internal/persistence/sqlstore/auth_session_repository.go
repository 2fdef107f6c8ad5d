package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/sessionboard/internal/persistence"
)

// AuthSessionRepository implements persistence.AuthSessionRepository.
type AuthSessionRepository struct {
	pool *ConnectionPool
}

// NewAuthSessionRepository creates a repository backed by pool.
func NewAuthSessionRepository(pool *ConnectionPool) *AuthSessionRepository {
	return &AuthSessionRepository{pool: pool}
}

const authSessionColumns = `id, actor_id, token, expires_at, revoked_at, created_at`

// CreateAuthSession stores a new binding for an actor.
func (r *AuthSessionRepository) CreateAuthSession(ctx context.Context, session persistence.AuthSession) (persistence.AuthSession, error) {
	if session.ID == "" || session.ActorID == "" || strings.TrimSpace(session.Token) == "" {
		return persistence.AuthSession{}, persistence.ErrConstraintViolation
	}

	_, err := r.pool.conn().ExecContext(ctx,
		`INSERT INTO auth_sessions (`+authSessionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.ActorID,
		session.Token,
		formatTime(session.ExpiresAt),
		formatNullableTime(session.RevokedAt),
		formatTime(session.CreatedAt),
	)
	if err != nil {
		return persistence.AuthSession{}, mapError(err)
	}
	return session, nil
}

// GetAuthSession retrieves a binding by its token value.
func (r *AuthSessionRepository) GetAuthSession(ctx context.Context, token string) (persistence.AuthSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.AuthSession{}, persistence.ErrNotFound
	}
	return r.get(ctx, r.pool.conn(), token)
}

func (r *AuthSessionRepository) get(ctx context.Context, q DBTX, token string) (persistence.AuthSession, error) {
	var (
		session              persistence.AuthSession
		expiresAt, createdAt string
		revokedAt            sql.NullString
	)
	err := q.QueryRowContext(ctx, `SELECT `+authSessionColumns+` FROM auth_sessions WHERE token = ?`, token).Scan(
		&session.ID,
		&session.ActorID,
		&session.Token,
		&expiresAt,
		&revokedAt,
		&createdAt,
	)
	if err != nil {
		return persistence.AuthSession{}, mapError(err)
	}
	if session.ExpiresAt, err = parseTime("expires_at", expiresAt); err != nil {
		return persistence.AuthSession{}, err
	}
	if session.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.AuthSession{}, err
	}
	if session.RevokedAt, err = parseNullableTime("revoked_at", revokedAt); err != nil {
		return persistence.AuthSession{}, err
	}
	return session, nil
}

// RevokeAuthSession stamps revoked_at on a binding that is not yet revoked and
// returns the stored row. Revoking twice keeps the first timestamp.
func (r *AuthSessionRepository) RevokeAuthSession(ctx context.Context, token string, revokedAt time.Time) (persistence.AuthSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.AuthSession{}, persistence.ErrNotFound
	}

	var revoked persistence.AuthSession
	err := r.pool.WithRetryingTransaction(ctx, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE auth_sessions SET revoked_at = ? WHERE token = ? AND revoked_at IS NULL`,
			formatTime(revokedAt), token,
		); err != nil {
			return mapError(err)
		}
		var err error
		revoked, err = r.get(ctx, tx, token)
		return err
	})
	if err != nil {
		return persistence.AuthSession{}, err
	}
	return revoked, nil
}

// DeleteExpiredAuthSessions removes bindings that expired on or before reference.
func (r *AuthSessionRepository) DeleteExpiredAuthSessions(ctx context.Context, reference time.Time) error {
	_, err := r.pool.conn().ExecContext(ctx,
		`DELETE FROM auth_sessions WHERE expires_at <= ?`, formatTime(reference))
	return mapError(err)
}
