package sqlstore

import (
	"context"
	"strings"

	"github.com/example/sessionboard/internal/persistence"
)

// CommentRepository implements persistence.CommentRepository.
type CommentRepository struct {
	pool *ConnectionPool
}

// NewCommentRepository creates a repository backed by pool.
func NewCommentRepository(pool *ConnectionPool) *CommentRepository {
	return &CommentRepository{pool: pool}
}

const commentColumns = `id, text, session_id, creator_id, created_at, updated_at`

// CreateComment inserts a comment. Missing session or creator rows surface
// as persistence.ErrForeignKeyViolation.
func (r *CommentRepository) CreateComment(ctx context.Context, comment persistence.Comment) error {
	if comment.ID == "" || comment.SessionID == "" || comment.CreatorID == "" || strings.TrimSpace(comment.Text) == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.conn().ExecContext(ctx,
		`INSERT INTO comments (`+commentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		comment.ID,
		comment.Text,
		comment.SessionID,
		comment.CreatorID,
		formatTime(comment.CreatedAt),
		formatTime(comment.UpdatedAt),
	)
	return mapError(err)
}

// GetComment retrieves a comment by id.
func (r *CommentRepository) GetComment(ctx context.Context, id string) (persistence.Comment, error) {
	if id == "" {
		return persistence.Comment{}, persistence.ErrNotFound
	}
	row := r.pool.conn().QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = ?`, id)
	return scanComment(row)
}

// DeleteComment removes a comment by id.
func (r *CommentRepository) DeleteComment(ctx context.Context, id string) error {
	result, err := r.pool.conn().ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

// ListComments returns a session's comments oldest first.
func (r *CommentRepository) ListComments(ctx context.Context, sessionID string) ([]persistence.Comment, error) {
	rows, err := r.pool.conn().QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE session_id = ? ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var comments []persistence.Comment
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, mapError(rows.Err())
}

func scanComment(row rowScanner) (persistence.Comment, error) {
	var (
		comment              persistence.Comment
		createdAt, updatedAt string
	)
	err := row.Scan(&comment.ID, &comment.Text, &comment.SessionID, &comment.CreatorID, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Comment{}, mapError(err)
	}
	if comment.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Comment{}, err
	}
	if comment.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Comment{}, err
	}
	return comment, nil
}
