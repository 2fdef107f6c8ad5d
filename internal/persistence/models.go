package persistence

import "time"

// Actor is a registered account.
type Actor struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is a scheduled event owned by its creator.
type Session struct {
	ID              string
	Title           string
	Body            string
	Start           time.Time
	End             time.Time
	AttendeeLimit   int
	CreatorID       string
	IsCancelled     bool
	VoiceChannelURL *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Membership records an actor's participation in a session.
type Membership struct {
	ActorID   string
	SessionID string
	JoinedAt  time.Time
}

// Comment is a message left on a session.
type Comment struct {
	ID        string
	Text      string
	SessionID string
	CreatorID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuthSession binds an opaque client token to an actor.
type AuthSession struct {
	ID        string
	ActorID   string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// VoiceLink is an actor's connection to an external voice provider account.
type VoiceLink struct {
	ActorID    string
	Provider   string
	ExternalID string
	CreatedAt  time.Time
}

// SessionCursor marks the last row of a page in newest-first order.
type SessionCursor struct {
	CreatedAt time.Time
	ID        string
}
