package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/sessionboard/internal/persistence"
)

// MembershipLedger manages who attends which session. Session creators are
// never members of their own sessions and do not count toward the limit.
type MembershipLedger struct {
	sessions    persistence.SessionRepository
	memberships persistence.MembershipRepository
	now         func() time.Time
	logger      *slog.Logger
	observer    OperationObserver
}

// NewMembershipLedger constructs a MembershipLedger.
func NewMembershipLedger(sessions persistence.SessionRepository, memberships persistence.MembershipRepository, now func() time.Time) *MembershipLedger {
	return NewMembershipLedgerWithLogger(sessions, memberships, now, nil, nil)
}

// NewMembershipLedgerWithLogger constructs a MembershipLedger with a specified logger and observer.
func NewMembershipLedgerWithLogger(sessions persistence.SessionRepository, memberships persistence.MembershipRepository, now func() time.Time, logger *slog.Logger, observer OperationObserver) *MembershipLedger {
	if now == nil {
		now = time.Now
	}
	return &MembershipLedger{
		sessions:    sessions,
		memberships: memberships,
		now:         now,
		logger:      defaultLogger(logger),
		observer:    defaultObserver(observer),
	}
}

func (l *MembershipLedger) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, l.logger, "MembershipLedger", operation, attrs...)
}

func (l *MembershipLedger) ready() error {
	if l == nil {
		return fmt.Errorf("MembershipLedger is nil")
	}
	if l.sessions == nil || l.memberships == nil {
		return fmt.Errorf("membership repositories not configured")
	}
	return nil
}

// Join adds the principal to a session. Refusals are reported through the
// outcome, not the error; err is reserved for missing sessions,
// anonymous callers and store failures.
func (l *MembershipLedger) Join(ctx context.Context, principal Principal, sessionID string) (outcome JoinOutcome, err error) {
	if err = l.ready(); err != nil {
		return
	}
	sessionID = strings.TrimSpace(sessionID)
	logger := l.loggerWith(ctx, "Join", "actor_id", principal.ActorID, "session_id", sessionID)
	defer func() {
		reported := err
		if err == nil {
			logger = logger.With("outcome", outcome.String())
			reported = outcome.Err()
		}
		finish(ctx, logger, l.observer, "MembershipLedger", "Join", reported)
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}

	model, err := l.sessions.GetSession(ctx, sessionID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	session := toSession(model)
	now := l.now()

	if outcome, err = l.precheck(ctx, principal, session, now); err != nil || outcome != JoinJoined {
		return
	}

	inserted, err := l.memberships.AddMembershipWithinLimit(ctx, persistence.Membership{
		ActorID:   principal.ActorID,
		SessionID: session.ID,
		JoinedAt:  now,
	}, now)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if inserted {
		outcome = JoinJoined
		return
	}

	// The conditional insert refused. Re-read to explain why; the session
	// may have changed since the precheck.
	outcome, err = l.explainRefusal(ctx, principal, session.ID, now)
	return
}

func (l *MembershipLedger) precheck(ctx context.Context, principal Principal, session Session, now time.Time) (JoinOutcome, error) {
	switch {
	case session.CreatorID == principal.ActorID:
		return JoinCreator, nil
	case session.IsCancelled:
		return JoinCancelled, nil
	case session.Status(now) == StatusPast:
		return JoinPast, nil
	}
	isMember, err := l.memberships.IsMember(ctx, session.ID, principal.ActorID)
	if err != nil {
		return JoinJoined, mapRepoError(err)
	}
	if isMember {
		return JoinAlreadyMember, nil
	}
	return JoinJoined, nil
}

func (l *MembershipLedger) explainRefusal(ctx context.Context, principal Principal, sessionID string, now time.Time) (JoinOutcome, error) {
	model, err := l.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return JoinFull, mapRepoError(err)
	}
	outcome, err := l.precheck(ctx, principal, toSession(model), now)
	if err != nil {
		return JoinFull, err
	}
	if outcome == JoinJoined {
		return JoinFull, nil
	}
	return outcome, nil
}

// Leave removes the principal's membership. It reports false when there was
// none. Leaving is allowed whatever the session's state.
func (l *MembershipLedger) Leave(ctx context.Context, principal Principal, sessionID string) (left bool, err error) {
	if err = l.ready(); err != nil {
		return
	}
	sessionID = strings.TrimSpace(sessionID)
	logger := l.loggerWith(ctx, "Leave", "actor_id", principal.ActorID, "session_id", sessionID)
	defer func() {
		if err == nil {
			logger = logger.With("left", left)
		}
		finish(ctx, logger, l.observer, "MembershipLedger", "Leave", err)
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}
	left, err = l.memberships.DeleteMembership(ctx, sessionID, principal.ActorID)
	err = mapRepoError(err)
	return
}

// IsMember reports whether actorID holds a membership of sessionID.
func (l *MembershipLedger) IsMember(ctx context.Context, sessionID, actorID string) (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	ok, err := l.memberships.IsMember(ctx, sessionID, actorID)
	return ok, mapRepoError(err)
}

// Count returns the number of members of sessionID.
func (l *MembershipLedger) Count(ctx context.Context, sessionID string) (int, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	n, err := l.memberships.CountMembers(ctx, sessionID)
	return n, mapRepoError(err)
}
