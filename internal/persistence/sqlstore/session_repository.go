package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/sessionboard/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository.
type SessionRepository struct {
	pool *ConnectionPool
}

// NewSessionRepository creates a repository backed by pool.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, title, body, start_at, end_at, attendee_limit, creator_id, is_cancelled, voice_channel_url, created_at, updated_at`

// CreateSession inserts a session row.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) error {
	if session.ID == "" || session.CreatorID == "" || strings.TrimSpace(session.Title) == "" {
		return persistence.ErrConstraintViolation
	}
	if !session.End.After(session.Start) || session.AttendeeLimit < 1 {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.pool.conn().ExecContext(ctx, query,
		session.ID,
		session.Title,
		session.Body,
		formatTime(session.Start),
		formatTime(session.End),
		session.AttendeeLimit,
		session.CreatorID,
		session.IsCancelled,
		nullableString(session.VoiceChannelURL),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	return mapError(err)
}

// GetSession retrieves a session by id.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	if id == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	row := r.pool.conn().QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// UpdateSessionDetails writes the editable columns while the session is
// still open, that is not cancelled and ending after now. It reports false
// when the row is missing or no longer open.
func (r *SessionRepository) UpdateSessionDetails(ctx context.Context, session persistence.Session, now time.Time) (bool, error) {
	if session.ID == "" || strings.TrimSpace(session.Title) == "" {
		return false, persistence.ErrConstraintViolation
	}

	query := `
		UPDATE sessions
		SET title = ?, body = ?, voice_channel_url = ?, updated_at = ?
		WHERE id = ? AND is_cancelled = ? AND end_at > ?
	`
	result, err := r.pool.conn().ExecContext(ctx, query,
		session.Title,
		session.Body,
		nullableString(session.VoiceChannelURL),
		formatTime(now),
		session.ID,
		false,
		formatTime(now),
	)
	if err != nil {
		return false, mapError(err)
	}
	return affectedOne(result)
}

// CancelSession marks the session cancelled unless it already ended. It
// reports false when the row is missing or past.
func (r *SessionRepository) CancelSession(ctx context.Context, id string, now time.Time) (bool, error) {
	if id == "" {
		return false, persistence.ErrConstraintViolation
	}

	query := `
		UPDATE sessions
		SET is_cancelled = ?, updated_at = ?
		WHERE id = ? AND end_at > ?
	`
	result, err := r.pool.conn().ExecContext(ctx, query, true, formatTime(now), id, formatTime(now))
	if err != nil {
		return false, mapError(err)
	}
	return affectedOne(result)
}

// DeleteSession removes a session together with its memberships and comments.
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	return r.pool.WithRetryingTransaction(ctx, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE session_id = ?`, id); err != nil {
			return mapError(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE session_id = ?`, id); err != nil {
			return mapError(err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return mapError(err)
		}
		return requireAffected(result)
	})
}

// ListSessions returns sessions newest first, starting strictly after cursor.
func (r *SessionRepository) ListSessions(ctx context.Context, after *persistence.SessionCursor, limit int) ([]persistence.Session, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []any{}
	if after != nil {
		at := formatTime(after.CreatedAt)
		query += ` WHERE created_at < ? OR (created_at = ? AND id < ?)`
		args = append(args, at, at, after.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.pool.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var sessions []persistence.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session                          persistence.Session
		start, end, createdAt, updatedAt string
		voice                            sql.NullString
	)
	err := row.Scan(
		&session.ID,
		&session.Title,
		&session.Body,
		&start,
		&end,
		&session.AttendeeLimit,
		&session.CreatorID,
		&session.IsCancelled,
		&voice,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Session{}, mapError(err)
	}

	if session.Start, err = parseTime("start_at", start); err != nil {
		return persistence.Session{}, err
	}
	if session.End, err = parseTime("end_at", end); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Session{}, err
	}
	session.VoiceChannelURL = stringPtr(voice)
	return session, nil
}

func affectedOne(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
