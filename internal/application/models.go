package application

import "time"

// Principal represents the authenticated actor invoking a service method.
// The zero value is an anonymous caller.
type Principal struct {
	ActorID string
}

// Authenticated reports whether the principal carries an actor identity.
func (p Principal) Authenticated() bool {
	return p.ActorID != ""
}

// Actor is a registered account as seen by callers.
type Actor struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// visibleTo strips fields the viewer may not read. Only the actor itself
// sees its email; nobody sees the password hash.
func (a Actor) visibleTo(viewer Principal) Actor {
	out := a
	out.PasswordHash = ""
	if viewer.ActorID != a.ID {
		out.Email = ""
	}
	return out
}

// AuthSession binds an opaque client token to an actor on the server side.
type AuthSession struct {
	ID        string
	ActorID   string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// SignupParams carries the registration form.
type SignupParams struct {
	Name     string
	Email    string
	Password string
}

// LoginParams carries the login form.
type LoginParams struct {
	NameOrEmail string
	Password    string
}

// AuthResult is returned by every operation that binds a new identity.
type AuthResult struct {
	Actor   Actor
	Session AuthSession
}

// Session is a time boxed event owned by its creator.
type Session struct {
	ID              string
	Title           string
	Body            string
	Start           time.Time
	End             time.Time
	AttendeeLimit   int
	CreatorID       string
	IsCancelled     bool
	VoiceChannelURL string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TimeStatus is the phase of a session derived from the clock.
type TimeStatus string

const (
	StatusUpcoming TimeStatus = "UPCOMING"
	StatusOngoing  TimeStatus = "ONGOING"
	StatusPast     TimeStatus = "PAST"
)

// Rank orders statuses along the timeline.
func (s TimeStatus) Rank() int {
	switch s {
	case StatusUpcoming:
		return 0
	case StatusOngoing:
		return 1
	case StatusPast:
		return 2
	default:
		return -1
	}
}

// Capabilities lists what a principal may do with a session right now.
type Capabilities struct {
	CanEdit    bool
	CanCancel  bool
	CanDelete  bool
	CanJoin    bool
	CanLeave   bool
	CanComment bool
}

// SessionView is a session enriched with the values derived for one viewer.
type SessionView struct {
	Session
	Status        TimeStatus
	AttendeeCount int
	IsMember      bool
	Capabilities  Capabilities
	TextSnippet   string
}

// SessionPage is one page of the newest-first session listing.
type SessionPage struct {
	Sessions   []SessionView
	NextCursor string
	HasMore    bool
}

// CreateSessionParams carries the fields of a new session.
type CreateSessionParams struct {
	Title           string
	Body            string
	Start           time.Time
	End             time.Time
	AttendeeLimit   int
	VoiceChannelURL string
}

// EditSessionParams is a partial update; nil fields are left unchanged.
type EditSessionParams struct {
	Title           *string
	Body            *string
	VoiceChannelURL *string
}

// Membership records an actor's participation in a session.
type Membership struct {
	ActorID   string
	SessionID string
	JoinedAt  time.Time
}

// JoinOutcome explains the result of a join attempt.
type JoinOutcome int

const (
	JoinJoined JoinOutcome = iota
	JoinAlreadyMember
	JoinCreator
	JoinCancelled
	JoinPast
	JoinFull
)

// OK reports whether the attempt added a membership.
func (o JoinOutcome) OK() bool {
	return o == JoinJoined
}

// Err maps a refused join onto the matching sentinel, or nil when it succeeded.
func (o JoinOutcome) Err() error {
	switch o {
	case JoinJoined:
		return nil
	case JoinAlreadyMember:
		return newConflict("session", "already a member of this session")
	case JoinCreator:
		return fieldError("session", "creators cannot join their own session")
	case JoinCancelled:
		return ErrSessionCancelled
	case JoinPast:
		return ErrSessionPast
	case JoinFull:
		return ErrSessionFull
	default:
		return ErrSessionFull
	}
}

func (o JoinOutcome) String() string {
	switch o {
	case JoinJoined:
		return "joined"
	case JoinAlreadyMember:
		return "already_member"
	case JoinCreator:
		return "creator"
	case JoinCancelled:
		return "cancelled"
	case JoinPast:
		return "past"
	case JoinFull:
		return "full"
	default:
		return "unknown"
	}
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
