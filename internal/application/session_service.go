package application

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/sessionboard/internal/persistence"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// SessionServiceDeps wires a SessionService.
type SessionServiceDeps struct {
	Sessions    persistence.SessionRepository
	Memberships persistence.MembershipRepository
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
	Observer    OperationObserver
}

// SessionService implements the session lifecycle: creation, edits,
// cancellation, deletion and reads with derived status.
type SessionService struct {
	sessions    persistence.SessionRepository
	memberships persistence.MembershipRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	observer    OperationObserver
}

// NewSessionService constructs a SessionService.
func NewSessionService(deps SessionServiceDeps) *SessionService {
	s := &SessionService{
		sessions:    deps.Sessions,
		memberships: deps.Memberships,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		logger:      defaultLogger(deps.Logger),
		observer:    defaultObserver(deps.Observer),
	}
	if s.idGenerator == nil {
		s.idGenerator = RandomToken
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

func (s *SessionService) ready() error {
	if s == nil {
		return fmt.Errorf("SessionService is nil")
	}
	if s.sessions == nil || s.memberships == nil {
		return fmt.Errorf("session repositories not configured")
	}
	return nil
}

// Create stores a new session owned by the principal.
func (s *SessionService) Create(ctx context.Context, principal Principal, params CreateSessionParams) (view SessionView, err error) {
	if err = s.ready(); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "Create", "actor_id", principal.ActorID)
	defer func() {
		if err == nil {
			logger = logger.With("session_id", view.ID)
		}
		finish(ctx, logger, s.observer, "SessionService", "Create", err)
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}

	now := s.now()
	vErr := validateSessionFields(params.Title, params.Body, params.AttendeeLimit, params.VoiceChannelURL)
	vErr.merge(validateSchedule(params.Start, params.End, now))
	if vErr.HasErrors() {
		err = vErr
		return
	}

	session := Session{
		ID:              s.idGenerator(),
		Title:           strings.TrimSpace(params.Title),
		Body:            params.Body,
		Start:           params.Start.UTC(),
		End:             params.End.UTC(),
		AttendeeLimit:   params.AttendeeLimit,
		CreatorID:       principal.ActorID,
		VoiceChannelURL: strings.TrimSpace(params.VoiceChannelURL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err = s.sessions.CreateSession(ctx, toPersistenceSession(session)); err != nil {
		err = mapRepoError(err)
		return
	}
	view = s.buildView(principal, session, false, 0, now)
	return
}

// Get returns a session as seen by viewer.
func (s *SessionService) Get(ctx context.Context, viewer Principal, id string) (view SessionView, err error) {
	if err = s.ready(); err != nil {
		return
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return
	}
	return s.view(ctx, viewer, session)
}

// List returns sessions newest first. limit is clamped to [1, 50] and a
// non-positive limit selects the default page size.
func (s *SessionService) List(ctx context.Context, viewer Principal, cursor string, limit int) (page SessionPage, err error) {
	if err = s.ready(); err != nil {
		return
	}
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}

	var after *persistence.SessionCursor
	if cursor != "" {
		decoded, decodeErr := decodeCursor(cursor)
		if decodeErr != nil {
			err = fieldError("cursor", "invalid cursor")
			return
		}
		after = &decoded
	}

	// Fetch one extra row to learn whether another page exists.
	models, err := s.sessions.ListSessions(ctx, after, limit+1)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if len(models) > limit {
		page.HasMore = true
		models = models[:limit]
	}

	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	counts, err := s.memberships.CountMembersBySession(ctx, ids)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	member, err := s.memberships.MembershipsForActor(ctx, viewer.ActorID, ids)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	now := s.now()
	page.Sessions = make([]SessionView, 0, len(models))
	for _, m := range models {
		session := toSession(m)
		page.Sessions = append(page.Sessions, s.buildView(viewer, session, member[session.ID], counts[session.ID], now))
	}
	if page.HasMore && len(models) > 0 {
		last := models[len(models)-1]
		page.NextCursor = encodeCursor(persistence.SessionCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return
}

// Edit applies a partial update. Only the creator may edit, and only while
// the session is neither cancelled nor past.
func (s *SessionService) Edit(ctx context.Context, principal Principal, id string, params EditSessionParams) (view SessionView, err error) {
	if err = s.ready(); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "Edit", "actor_id", principal.ActorID, "session_id", id)
	defer func() {
		finish(ctx, logger, s.observer, "SessionService", "Edit", err)
	}()

	session, err := s.ownedSession(ctx, principal, id)
	if err != nil {
		return
	}
	now := s.now()
	if session.IsCancelled {
		err = ErrSessionCancelled
		return
	}
	if session.Status(now) == StatusPast {
		err = ErrSessionPast
		return
	}

	if params.Title != nil {
		session.Title = strings.TrimSpace(*params.Title)
	}
	if params.Body != nil {
		session.Body = *params.Body
	}
	if params.VoiceChannelURL != nil {
		session.VoiceChannelURL = strings.TrimSpace(*params.VoiceChannelURL)
	}
	if vErr := validateSessionFields(session.Title, session.Body, session.AttendeeLimit, session.VoiceChannelURL); vErr.HasErrors() {
		err = vErr
		return
	}

	written, err := s.sessions.UpdateSessionDetails(ctx, toPersistenceSession(session), now)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if !written {
		err = s.explainRefusedEdit(ctx, id)
		return
	}
	session.UpdatedAt = now
	return s.view(ctx, principal, session)
}

// Cancel marks the session cancelled. Cancelling twice is a no-op; a past
// session can no longer be cancelled.
func (s *SessionService) Cancel(ctx context.Context, principal Principal, id string) (view SessionView, err error) {
	if err = s.ready(); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "Cancel", "actor_id", principal.ActorID, "session_id", id)
	defer func() {
		finish(ctx, logger, s.observer, "SessionService", "Cancel", err)
	}()

	session, err := s.ownedSession(ctx, principal, id)
	if err != nil {
		return
	}
	now := s.now()
	if session.Status(now) == StatusPast {
		err = ErrSessionPast
		return
	}
	if !session.IsCancelled {
		var written bool
		if written, err = s.sessions.CancelSession(ctx, session.ID, now); err != nil {
			err = mapRepoError(err)
			return
		}
		if !written {
			// The session was deleted or ended since it was loaded.
			if _, err = s.load(ctx, id); err == nil {
				err = ErrSessionPast
			}
			return
		}
		session.IsCancelled = true
		session.UpdatedAt = now
	}
	return s.view(ctx, principal, session)
}

// Delete removes the session with its memberships and comments.
func (s *SessionService) Delete(ctx context.Context, principal Principal, id string) (err error) {
	if err = s.ready(); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "Delete", "actor_id", principal.ActorID, "session_id", id)
	defer func() {
		finish(ctx, logger, s.observer, "SessionService", "Delete", err)
	}()

	if _, err = s.ownedSession(ctx, principal, id); err != nil {
		return
	}
	err = mapRepoError(s.sessions.DeleteSession(ctx, id))
	return
}

// explainRefusedEdit re-reads a session whose guarded update matched no row.
func (s *SessionService) explainRefusedEdit(ctx context.Context, id string) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if current.IsCancelled {
		return ErrSessionCancelled
	}
	return ErrSessionPast
}

func (s *SessionService) load(ctx context.Context, id string) (Session, error) {
	model, err := s.sessions.GetSession(ctx, strings.TrimSpace(id))
	if err != nil {
		return Session{}, mapRepoError(err)
	}
	return toSession(model), nil
}

func (s *SessionService) ownedSession(ctx context.Context, principal Principal, id string) (Session, error) {
	if !principal.Authenticated() {
		return Session{}, ErrUnauthorized
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if session.CreatorID != principal.ActorID {
		return Session{}, ErrUnauthorized
	}
	return session, nil
}

func (s *SessionService) view(ctx context.Context, viewer Principal, session Session) (SessionView, error) {
	count, err := s.memberships.CountMembers(ctx, session.ID)
	if err != nil {
		return SessionView{}, mapRepoError(err)
	}
	isMember, err := s.memberships.IsMember(ctx, session.ID, viewer.ActorID)
	if err != nil {
		return SessionView{}, mapRepoError(err)
	}
	return s.buildView(viewer, session, isMember, count, s.now()), nil
}

func (s *SessionService) buildView(viewer Principal, session Session, isMember bool, count int, now time.Time) SessionView {
	return SessionView{
		Session:       session,
		Status:        session.Status(now),
		AttendeeCount: count,
		IsMember:      isMember,
		Capabilities:  CapabilitiesFor(viewer, session, isMember, count, now),
		TextSnippet:   textSnippet(session.Body),
	}
}

func encodeCursor(c persistence.SessionCursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (persistence.SessionCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return persistence.SessionCursor{}, err
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return persistence.SessionCursor{}, fmt.Errorf("malformed cursor")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return persistence.SessionCursor{}, err
	}
	return persistence.SessionCursor{CreatedAt: createdAt, ID: id}, nil
}
