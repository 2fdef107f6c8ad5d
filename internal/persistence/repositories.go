package persistence

import (
	"context"
	"time"
)

// ActorRepository stores accounts. Name and email lookups are case-insensitive.
type ActorRepository interface {
	CreateActor(ctx context.Context, actor Actor) error
	GetActor(ctx context.Context, id string) (Actor, error)
	GetActorByName(ctx context.Context, name string) (Actor, error)
	GetActorByEmail(ctx context.Context, email string) (Actor, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

// SessionRepository stores sessions. DeleteSession removes the session's
// memberships and comments in the same transaction.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	// UpdateSessionDetails writes title, body and voice link only while the
	// session is not cancelled and ends after now. CancelSession only
	// requires that the session ends after now. Both report whether the
	// row was written, so callers never overwrite a concurrent change.
	UpdateSessionDetails(ctx context.Context, session Session, now time.Time) (bool, error)
	CancelSession(ctx context.Context, id string, now time.Time) (bool, error)
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context, after *SessionCursor, limit int) ([]Session, error)
}

// MembershipRepository stores the session membership ledger.
type MembershipRepository interface {
	// AddMembershipWithinLimit inserts the membership only if the session
	// exists, is not cancelled, ends after now, was not created by the actor,
	// and is below its attendee limit. The check and the insert are atomic.
	AddMembershipWithinLimit(ctx context.Context, membership Membership, now time.Time) (bool, error)
	DeleteMembership(ctx context.Context, sessionID, actorID string) (bool, error)
	IsMember(ctx context.Context, sessionID, actorID string) (bool, error)
	CountMembers(ctx context.Context, sessionID string) (int, error)
	CountMembersBySession(ctx context.Context, sessionIDs []string) (map[string]int, error)
	MembershipsForActor(ctx context.Context, actorID string, sessionIDs []string) (map[string]bool, error)
}

// CommentRepository stores session comments.
type CommentRepository interface {
	CreateComment(ctx context.Context, comment Comment) error
	GetComment(ctx context.Context, id string) (Comment, error)
	DeleteComment(ctx context.Context, id string) error
	ListComments(ctx context.Context, sessionID string) ([]Comment, error)
}

// AuthSessionRepository stores session-context bindings.
type AuthSessionRepository interface {
	CreateAuthSession(ctx context.Context, session AuthSession) (AuthSession, error)
	GetAuthSession(ctx context.Context, token string) (AuthSession, error)
	RevokeAuthSession(ctx context.Context, token string, revokedAt time.Time) (AuthSession, error)
	DeleteExpiredAuthSessions(ctx context.Context, reference time.Time) error
}

// TokenRepository is an expiring key-value store. PutToken never overwrites an
// existing live key and TakeToken reads and deletes in one step.
type TokenRepository interface {
	PutToken(ctx context.Context, key, value string, now, expiresAt time.Time) error
	TakeToken(ctx context.Context, key string, now time.Time) (string, error)
}

// AccountEraser removes an actor and everything referencing it atomically.
type AccountEraser interface {
	EraseActor(ctx context.Context, actorID string) error
}
