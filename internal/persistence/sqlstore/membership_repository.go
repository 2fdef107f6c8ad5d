package sqlstore

import (
	"context"
	"time"

	"github.com/example/sessionboard/internal/persistence"
)

// MembershipRepository implements persistence.MembershipRepository.
type MembershipRepository struct {
	pool *ConnectionPool
}

// NewMembershipRepository creates a repository backed by pool.
func NewMembershipRepository(pool *ConnectionPool) *MembershipRepository {
	return &MembershipRepository{pool: pool}
}

// joinQuery inserts a membership only while every join precondition holds.
// The capacity count and the insert happen in one statement, and the
// (actor_id, session_id) primary key absorbs duplicate joins.
const joinQuery = `
	INSERT INTO memberships (actor_id, session_id, joined_at)
	SELECT ?, s.id, ?
	FROM sessions s
	WHERE s.id = ?
	  AND s.is_cancelled = ?
	  AND s.end_at > ?
	  AND s.creator_id <> ?
	  AND (SELECT COUNT(*) FROM memberships m WHERE m.session_id = s.id) < s.attendee_limit
	ON CONFLICT (actor_id, session_id) DO NOTHING
`

// AddMembershipWithinLimit reports whether a new membership row was written.
//
// SQLite transactions begin IMMEDIATE, so the statement runs under the
// database write lock. PostgreSQL first locks the session row, which
// serializes concurrent joiners of the same session while the statement
// re-reads the committed member count.
func (r *MembershipRepository) AddMembershipWithinLimit(ctx context.Context, membership persistence.Membership, now time.Time) (bool, error) {
	if membership.ActorID == "" || membership.SessionID == "" {
		return false, persistence.ErrConstraintViolation
	}

	var inserted bool
	err := r.pool.WithRetryingTransaction(ctx, func(ctx context.Context, tx DBTX) error {
		inserted = false
		if r.pool.Dialect() == DialectPostgres {
			var id string
			err := tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE id = ? FOR UPDATE`, membership.SessionID).Scan(&id)
			if err != nil {
				return mapError(err)
			}
		}

		result, err := tx.ExecContext(ctx, joinQuery,
			membership.ActorID,
			formatTime(membership.JoinedAt),
			membership.SessionID,
			false,
			formatTime(now),
			membership.ActorID,
		)
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		inserted = affected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// DeleteMembership removes a membership and reports whether one existed.
func (r *MembershipRepository) DeleteMembership(ctx context.Context, sessionID, actorID string) (bool, error) {
	result, err := r.pool.conn().ExecContext(ctx,
		`DELETE FROM memberships WHERE session_id = ? AND actor_id = ?`, sessionID, actorID)
	if err != nil {
		return false, mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// IsMember reports whether the actor holds a membership for the session.
func (r *MembershipRepository) IsMember(ctx context.Context, sessionID, actorID string) (bool, error) {
	if sessionID == "" || actorID == "" {
		return false, nil
	}
	var n int
	err := r.pool.conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memberships WHERE session_id = ? AND actor_id = ?`, sessionID, actorID).Scan(&n)
	if err != nil {
		return false, mapError(err)
	}
	return n > 0, nil
}

// CountMembers returns the number of memberships of a session.
func (r *MembershipRepository) CountMembers(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.pool.conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memberships WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// CountMembersBySession returns member counts keyed by session id. Sessions
// without members are absent from the map.
func (r *MembershipRepository) CountMembersBySession(ctx context.Context, sessionIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return counts, nil
	}

	query := `SELECT session_id, COUNT(*) FROM memberships WHERE session_id IN (` + placeholders(len(sessionIDs)) + `) GROUP BY session_id`
	rows, err := r.pool.conn().QueryContext(ctx, query, stringArgs(sessionIDs)...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, mapError(err)
		}
		counts[id] = n
	}
	return counts, mapError(rows.Err())
}

// MembershipsForActor returns the subset of sessionIDs the actor belongs to.
func (r *MembershipRepository) MembershipsForActor(ctx context.Context, actorID string, sessionIDs []string) (map[string]bool, error) {
	member := make(map[string]bool)
	if actorID == "" || len(sessionIDs) == 0 {
		return member, nil
	}

	query := `SELECT session_id FROM memberships WHERE actor_id = ? AND session_id IN (` + placeholders(len(sessionIDs)) + `)`
	args := append([]any{actorID}, stringArgs(sessionIDs)...)
	rows, err := r.pool.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}
		member[id] = true
	}
	return member, mapError(rows.Err())
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
