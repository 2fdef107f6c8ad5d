package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/sessionboard/internal/persistence"
)

const maxCommentLength = 2000

// CommentService manages comments on sessions.
type CommentService struct {
	sessions    persistence.SessionRepository
	comments    persistence.CommentRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	observer    OperationObserver
}

// NewCommentService constructs a CommentService.
func NewCommentService(sessions persistence.SessionRepository, comments persistence.CommentRepository, idGenerator func() string, now func() time.Time) *CommentService {
	return NewCommentServiceWithLogger(sessions, comments, idGenerator, now, nil, nil)
}

// NewCommentServiceWithLogger constructs a CommentService with a specified logger and observer.
func NewCommentServiceWithLogger(sessions persistence.SessionRepository, comments persistence.CommentRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger, observer OperationObserver) *CommentService {
	if idGenerator == nil {
		idGenerator = RandomToken
	}
	if now == nil {
		now = time.Now
	}
	return &CommentService{
		sessions:    sessions,
		comments:    comments,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
		observer:    defaultObserver(observer),
	}
}

func (s *CommentService) ready() error {
	if s == nil {
		return fmt.Errorf("CommentService is nil")
	}
	if s.sessions == nil || s.comments == nil {
		return fmt.Errorf("comment repositories not configured")
	}
	return nil
}

// Add posts a comment. Any authenticated actor may comment on any existing
// session, cancelled and past ones included.
func (s *CommentService) Add(ctx context.Context, principal Principal, sessionID, text string) (comment Comment, err error) {
	if err = s.ready(); err != nil {
		return
	}
	logger := serviceLogger(ctx, s.logger, "CommentService", "Add", "actor_id", principal.ActorID, "session_id", sessionID)
	defer func() {
		finish(ctx, logger, s.observer, "CommentService", "Add", err)
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		err = fieldError("text", "comment cannot be empty")
		return
	case utf8.RuneCountInString(text) > maxCommentLength:
		err = fieldError("text", fmt.Sprintf("comment must be at most %d characters", maxCommentLength))
		return
	}

	if _, err = s.sessions.GetSession(ctx, sessionID); err != nil {
		err = mapRepoError(err)
		return
	}

	now := s.now()
	comment = Comment{
		ID:        s.idGenerator(),
		Text:      text,
		SessionID: sessionID,
		CreatorID: principal.ActorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = mapRepoError(s.comments.CreateComment(ctx, persistence.Comment{
		ID:        comment.ID,
		Text:      comment.Text,
		SessionID: comment.SessionID,
		CreatorID: comment.CreatorID,
		CreatedAt: comment.CreatedAt,
		UpdatedAt: comment.UpdatedAt,
	}))
	if err != nil {
		comment = Comment{}
	}
	return
}

// Delete removes a comment. Only its author may delete it.
func (s *CommentService) Delete(ctx context.Context, principal Principal, commentID string) (err error) {
	if err = s.ready(); err != nil {
		return
	}
	logger := serviceLogger(ctx, s.logger, "CommentService", "Delete", "actor_id", principal.ActorID, "comment_id", commentID)
	defer func() {
		finish(ctx, logger, s.observer, "CommentService", "Delete", err)
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}
	model, err := s.comments.GetComment(ctx, commentID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if model.CreatorID != principal.ActorID {
		err = ErrUnauthorized
		return
	}
	err = mapRepoError(s.comments.DeleteComment(ctx, commentID))
	return
}

// List returns a session's comments oldest first.
func (s *CommentService) List(ctx context.Context, sessionID string) ([]Comment, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, mapRepoError(err)
	}
	models, err := s.comments.ListComments(ctx, sessionID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	comments := make([]Comment, 0, len(models))
	for _, m := range models {
		comments = append(comments, toComment(m))
	}
	return comments, nil
}
