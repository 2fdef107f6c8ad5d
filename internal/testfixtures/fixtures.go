package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/sessionboard/internal/persistence"
)

var (
	actorCounter   uint64
	sessionCounter uint64
)

// ActorOption configures a generated actor record.
type ActorOption func(*persistence.Actor)

// NewActor returns a deterministic actor record with optional overrides.
func NewActor(opts ...ActorOption) persistence.Actor {
	idx := atomic.AddUint64(&actorCounter, 1)
	created := referenceTime.Add(-time.Duration(idx) * time.Minute)
	actor := persistence.Actor{
		ID:           fmt.Sprintf("actor-%03d", idx),
		DisplayName:  fmt.Sprintf("actor%03d", idx),
		Email:        fmt.Sprintf("actor%03d@example.com", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&actor)
	}
	return actor
}

// WithActorID overrides the generated actor ID.
func WithActorID(id string) ActorOption {
	return func(a *persistence.Actor) {
		a.ID = id
	}
}

// WithActorName overrides the display name.
func WithActorName(name string) ActorOption {
	return func(a *persistence.Actor) {
		a.DisplayName = name
	}
}

// WithActorEmail overrides the email address.
func WithActorEmail(email string) ActorOption {
	return func(a *persistence.Actor) {
		a.Email = email
	}
}

// SessionOption configures a generated session record.
type SessionOption func(*persistence.Session)

// NewSession returns a deterministic session owned by creatorID that starts
// one hour after ReferenceTime and lasts an hour.
func NewSession(creatorID string, opts ...SessionOption) persistence.Session {
	idx := atomic.AddUint64(&sessionCounter, 1)
	start := referenceTime.Add(time.Hour)
	session := persistence.Session{
		ID:            fmt.Sprintf("session-%03d", idx),
		Title:         fmt.Sprintf("Session %03d", idx),
		Start:         start,
		End:           start.Add(time.Hour),
		AttendeeLimit: 5,
		CreatorID:     creatorID,
		CreatedAt:     referenceTime.Add(time.Duration(idx) * time.Second),
		UpdatedAt:     referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&session)
	}
	return session
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(s *persistence.Session) {
		s.ID = id
	}
}

// WithSessionWindow sets the start and end times.
func WithSessionWindow(start, end time.Time) SessionOption {
	return func(s *persistence.Session) {
		s.Start = start
		s.End = end
	}
}

// WithAttendeeLimit overrides the attendee limit.
func WithAttendeeLimit(limit int) SessionOption {
	return func(s *persistence.Session) {
		s.AttendeeLimit = limit
	}
}

// WithSessionCancelled marks the session cancelled.
func WithSessionCancelled() SessionOption {
	return func(s *persistence.Session) {
		s.IsCancelled = true
	}
}

// WithSessionCreatedAt overrides the creation timestamp.
func WithSessionCreatedAt(t time.Time) SessionOption {
	return func(s *persistence.Session) {
		s.CreatedAt = t
		s.UpdatedAt = t
	}
}

// SeedActor stores actor, failing the test on error.
func (h *Harness) SeedActor(tb testing.TB, actor persistence.Actor) persistence.Actor {
	tb.Helper()
	if err := h.Actors.CreateActor(context.Background(), actor); err != nil {
		tb.Fatalf("seed actor %s: %v", actor.ID, err)
	}
	return actor
}

// SeedSession stores session, failing the test on error.
func (h *Harness) SeedSession(tb testing.TB, session persistence.Session) persistence.Session {
	tb.Helper()
	if err := h.Sessions.CreateSession(context.Background(), session); err != nil {
		tb.Fatalf("seed session %s: %v", session.ID, err)
	}
	return session
}

// SeedMembers adds actorIDs as members of sessionID, bypassing the limit
// check, and fails the test on error.
func (h *Harness) SeedMembers(tb testing.TB, sessionID string, actorIDs ...string) {
	tb.Helper()
	for _, id := range actorIDs {
		h.Exec(tb,
			`INSERT INTO memberships (actor_id, session_id, joined_at) VALUES (?, ?, ?)`,
			id, sessionID, referenceTime.UTC().Format("2006-01-02T15:04:05.000000Z"),
		)
	}
}
