package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/sessionboard/internal/persistence"
)

// ActorRepository implements persistence.ActorRepository.
type ActorRepository struct {
	pool *ConnectionPool
}

// NewActorRepository creates a repository backed by pool.
func NewActorRepository(pool *ConnectionPool) *ActorRepository {
	return &ActorRepository{pool: pool}
}

const actorColumns = `id, display_name, email, password_hash, created_at, updated_at`

// CreateActor inserts a new actor. Case-insensitive name and email
// uniqueness is enforced by unique indexes on the lowered columns, so a
// concurrent duplicate surfaces as *persistence.DuplicateError.
func (r *ActorRepository) CreateActor(ctx context.Context, actor persistence.Actor) error {
	if actor.ID == "" || strings.TrimSpace(actor.DisplayName) == "" || strings.TrimSpace(actor.Email) == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO actors (id, display_name, lower_name, email, lower_email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.pool.conn().ExecContext(ctx, query,
		actor.ID,
		actor.DisplayName,
		strings.ToLower(actor.DisplayName),
		actor.Email,
		strings.ToLower(actor.Email),
		actor.PasswordHash,
		formatTime(actor.CreatedAt),
		formatTime(actor.UpdatedAt),
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// GetActor retrieves an actor by id.
func (r *ActorRepository) GetActor(ctx context.Context, id string) (persistence.Actor, error) {
	return r.getBy(ctx, "id", id)
}

// GetActorByName retrieves an actor by case-insensitive display name.
func (r *ActorRepository) GetActorByName(ctx context.Context, name string) (persistence.Actor, error) {
	return r.getBy(ctx, "lower_name", strings.ToLower(strings.TrimSpace(name)))
}

// GetActorByEmail retrieves an actor by case-insensitive email.
func (r *ActorRepository) GetActorByEmail(ctx context.Context, email string) (persistence.Actor, error) {
	return r.getBy(ctx, "lower_email", strings.ToLower(strings.TrimSpace(email)))
}

func (r *ActorRepository) getBy(ctx context.Context, column, value string) (persistence.Actor, error) {
	if value == "" {
		return persistence.Actor{}, persistence.ErrNotFound
	}

	query := `SELECT ` + actorColumns + ` FROM actors WHERE ` + column + ` = ?`

	var (
		actor                persistence.Actor
		createdAt, updatedAt string
	)
	err := r.pool.conn().QueryRowContext(ctx, query, value).Scan(
		&actor.ID,
		&actor.DisplayName,
		&actor.Email,
		&actor.PasswordHash,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Actor{}, mapError(err)
	}

	if actor.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Actor{}, err
	}
	if actor.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Actor{}, err
	}
	return actor, nil
}

// UpdatePassword replaces the stored password hash.
func (r *ActorRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if id == "" || passwordHash == "" {
		return persistence.ErrConstraintViolation
	}

	result, err := r.pool.conn().ExecContext(ctx,
		`UPDATE actors SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, formatTime(updatedAt), id,
	)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
