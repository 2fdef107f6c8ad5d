package sqlstore

import (
	"context"
	"fmt"

	"github.com/example/sessionboard/internal/persistence"
)

// AccountEraser implements persistence.AccountEraser.
type AccountEraser struct {
	pool *ConnectionPool
}

// NewAccountEraser creates an eraser backed by pool.
func NewAccountEraser(pool *ConnectionPool) *AccountEraser {
	return &AccountEraser{pool: pool}
}

// erasureSteps run in order inside one transaction. Every statement takes the
// actor id as its only argument. Foreign keys cascade as well, but the
// explicit deletes keep the result independent of the foreign_keys setting.
var erasureSteps = []struct {
	name  string
	query string
}{
	{"comments", `DELETE FROM comments WHERE creator_id = ?`},
	{"memberships", `DELETE FROM memberships WHERE actor_id = ?`},
	{"owned session comments", `DELETE FROM comments WHERE session_id IN (SELECT id FROM sessions WHERE creator_id = ?)`},
	{"owned session memberships", `DELETE FROM memberships WHERE session_id IN (SELECT id FROM sessions WHERE creator_id = ?)`},
	{"owned sessions", `DELETE FROM sessions WHERE creator_id = ?`},
	{"voice links", `DELETE FROM voice_links WHERE actor_id = ?`},
	{"auth sessions", `DELETE FROM auth_sessions WHERE actor_id = ?`},
}

// EraseActor removes the actor and every row referencing it, or nothing at
// all. Lock contention is retried; a missing actor is persistence.ErrNotFound.
func (e *AccountEraser) EraseActor(ctx context.Context, actorID string) error {
	if actorID == "" {
		return persistence.ErrNotFound
	}
	return e.pool.WithRetryingTransaction(ctx, func(ctx context.Context, tx DBTX) error {
		for _, step := range erasureSteps {
			if _, err := tx.ExecContext(ctx, step.query, actorID); err != nil {
				return fmt.Errorf("erase %s: %w", step.name, mapError(err))
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM actors WHERE id = ?`, actorID)
		if err != nil {
			return fmt.Errorf("erase actor: %w", mapError(err))
		}
		return requireAffected(result)
	})
}
