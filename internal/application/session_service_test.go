package application_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sessionboard/internal/application"
	"github.com/example/sessionboard/internal/persistence"
	"github.com/example/sessionboard/internal/testfixtures"
)

func TestCreateSessionView(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))
	start := svc.Clock.Now().Add(time.Hour)

	view, err := svc.Sessions.Create(ctx, owner, application.CreateSessionParams{
		Title:           "  Book club  ",
		Body:            strings.Repeat("x", 80),
		Start:           start,
		End:             start.Add(time.Hour),
		AttendeeLimit:   3,
		VoiceChannelURL: "https://voice.example.com/club",
	})
	require.NoError(t, err)
	assert.Equal(t, "Book club", view.Title)
	assert.Equal(t, owner.ActorID, view.CreatorID)
	assert.Equal(t, application.StatusUpcoming, view.Status)
	assert.Len(t, view.TextSnippet, 50)
	assert.Equal(t, application.Capabilities{CanEdit: true, CanCancel: true, CanDelete: true, CanComment: true}, view.Capabilities)

	stored, err := svc.Sessions.Get(ctx, application.Principal{}, view.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://voice.example.com/club", stored.VoiceChannelURL)
	assert.Equal(t, application.Capabilities{}, stored.Capabilities)
}

func TestCreateSessionValidation(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))
	now := svc.Clock.Now()

	_, err := svc.Sessions.Create(ctx, owner, application.CreateSessionParams{
		Title:         "",
		Start:         now.Add(-time.Hour),
		End:           now.Add(-2 * time.Hour),
		AttendeeLimit: 0,
	})
	var vErr *application.ValidationError
	require.ErrorAs(t, err, &vErr)
	for field, want := range map[string]string{
		"title":         "title is required",
		"attendeeLimit": "attendee limit must be at least 1",
		"start":         "start cannot be in the past",
		"end":           "end must be after start",
	} {
		got, ok := vErr.Field(field)
		assert.True(t, ok, field)
		assert.Equal(t, want, got, field)
	}

	_, err = svc.Sessions.Create(ctx, application.Principal{}, application.CreateSessionParams{Title: "x"})
	assert.ErrorIs(t, err, application.ErrUnauthorized)
}

func TestStatusFollowsClock(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))
	session := createSession(t, svc, owner, "Timeline", 2)

	expect := []application.TimeStatus{application.StatusUpcoming, application.StatusOngoing, application.StatusPast}
	for i, want := range expect {
		view, err := svc.Sessions.Get(ctx, owner, session.ID)
		require.NoError(t, err)
		assert.Equal(t, want, view.Status, "step %d", i)
		svc.Clock.Advance(time.Hour)
	}
}

func TestEditSession(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))
	other := principalOf(signup(t, svc, "other"))
	session := createSession(t, svc, owner, "Draft", 2)

	title := "Final"
	body := "details"
	view, err := svc.Sessions.Edit(ctx, owner, session.ID, application.EditSessionParams{Title: &title, Body: &body})
	require.NoError(t, err)
	assert.Equal(t, "Final", view.Title)
	assert.Equal(t, "details", view.Body)
	assert.True(t, view.Start.Equal(session.Start))

	_, err = svc.Sessions.Edit(ctx, other, session.ID, application.EditSessionParams{Title: &title})
	assert.ErrorIs(t, err, application.ErrUnauthorized)

	empty := " "
	_, err = svc.Sessions.Edit(ctx, owner, session.ID, application.EditSessionParams{Title: &empty})
	assert.Equal(t, "title is required", fieldMessage(t, err, "title"))

	svc.Clock.Advance(3 * time.Hour)
	_, err = svc.Sessions.Edit(ctx, owner, session.ID, application.EditSessionParams{Title: &title})
	assert.ErrorIs(t, err, application.ErrSessionPast)
}

func TestCancelSession(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))
	guest := principalOf(signup(t, svc, "guest"))
	session := createSession(t, svc, owner, "Maybe", 2)

	_, err := svc.Sessions.Cancel(ctx, guest, session.ID)
	assert.ErrorIs(t, err, application.ErrUnauthorized)

	view, err := svc.Sessions.Cancel(ctx, owner, session.ID)
	require.NoError(t, err)
	assert.True(t, view.IsCancelled)
	assert.False(t, view.Capabilities.CanEdit)
	assert.True(t, view.Capabilities.CanDelete)

	view, err = svc.Sessions.Cancel(ctx, owner, session.ID)
	require.NoError(t, err, "cancelling twice is a no-op")
	assert.True(t, view.IsCancelled)

	title := "Back on"
	_, err = svc.Sessions.Edit(ctx, owner, session.ID, application.EditSessionParams{Title: &title})
	assert.ErrorIs(t, err, application.ErrSessionCancelled)

	svc.Clock.Advance(3 * time.Hour)
	_, err = svc.Sessions.Cancel(ctx, owner, session.ID)
	assert.ErrorIs(t, err, application.ErrSessionPast)
}

// interleavedSessions runs afterFirstRead once, right after the first
// GetSession returns, to land a concurrent write between a read and a write.
type interleavedSessions struct {
	persistence.SessionRepository
	once           sync.Once
	afterFirstRead func(id string)
}

func (r *interleavedSessions) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	session, err := r.SessionRepository.GetSession(ctx, id)
	r.once.Do(func() { r.afterFirstRead(id) })
	return session, err
}

func sessionServiceOver(svc *testfixtures.Services, sessions persistence.SessionRepository) *application.SessionService {
	return application.NewSessionService(application.SessionServiceDeps{
		Sessions:    sessions,
		Memberships: svc.Harness.Memberships,
		IDGenerator: svc.IDs.NextFunc(),
		Now:         svc.Clock.NowFunc(),
	})
}

func TestEditDoesNotUndoConcurrentCancel(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))
	session := createSession(t, svc, owner, "Contested", 2)

	racing := sessionServiceOver(svc, &interleavedSessions{
		SessionRepository: svc.Harness.Sessions,
		afterFirstRead: func(id string) {
			_, err := svc.Sessions.Cancel(ctx, owner, id)
			require.NoError(t, err)
		},
	})

	title := "edited"
	_, err := racing.Edit(ctx, owner, session.ID, application.EditSessionParams{Title: &title})
	assert.ErrorIs(t, err, application.ErrSessionCancelled)

	stored, err := svc.Sessions.Get(ctx, owner, session.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCancelled)
	assert.Equal(t, "Contested", stored.Title)
}

func TestEditAndCancelAfterConcurrentDelete(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))

	deleteAfterRead := func() *application.SessionService {
		return sessionServiceOver(svc, &interleavedSessions{
			SessionRepository: svc.Harness.Sessions,
			afterFirstRead: func(id string) {
				require.NoError(t, svc.Sessions.Delete(ctx, owner, id))
			},
		})
	}

	title := "edited"
	first := createSession(t, svc, owner, "Gone", 2)
	_, err := deleteAfterRead().Edit(ctx, owner, first.ID, application.EditSessionParams{Title: &title})
	assert.ErrorIs(t, err, application.ErrNotFound)

	second := createSession(t, svc, owner, "Also gone", 2)
	_, err = deleteAfterRead().Cancel(ctx, owner, second.ID)
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))
	guest := principalOf(signup(t, svc, "guest"))
	session := createSession(t, svc, owner, "Temporary", 2)

	_, err := svc.Memberships.Join(ctx, guest, session.ID)
	require.NoError(t, err)
	_, err = svc.Comments.Add(ctx, guest, session.ID, "see you")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Sessions.Delete(ctx, guest, session.ID), application.ErrUnauthorized)
	require.NoError(t, svc.Sessions.Delete(ctx, owner, session.ID))

	_, err = svc.Sessions.Get(ctx, owner, session.ID)
	assert.ErrorIs(t, err, application.ErrNotFound)
	assert.Equal(t, 0, svc.Harness.Count(t, "memberships", ""))
	assert.Equal(t, 0, svc.Harness.Count(t, "comments", ""))
}

func TestListSessionsPaginates(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))
	guest := principalOf(signup(t, svc, "guest"))

	var titles []string
	for i := 0; i < 5; i++ {
		title := fmt.Sprintf("Session %d", i)
		created := createSession(t, svc, owner, title, 2)
		titles = append(titles, title)
		if i == 4 {
			_, err := svc.Memberships.Join(ctx, guest, created.ID)
			require.NoError(t, err)
		}
		svc.Clock.Advance(time.Second)
	}

	page, err := svc.Sessions.List(ctx, guest, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Sessions, 2)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.NextCursor)
	assert.Equal(t, titles[4], page.Sessions[0].Title)
	assert.Equal(t, titles[3], page.Sessions[1].Title)
	assert.True(t, page.Sessions[0].IsMember)
	assert.Equal(t, 1, page.Sessions[0].AttendeeCount)
	assert.True(t, page.Sessions[0].Capabilities.CanLeave)
	assert.True(t, page.Sessions[1].Capabilities.CanJoin)

	rest, err := svc.Sessions.List(ctx, guest, page.NextCursor, 10)
	require.NoError(t, err)
	require.Len(t, rest.Sessions, 3)
	assert.False(t, rest.HasMore)
	assert.Empty(t, rest.NextCursor)
	assert.Equal(t, titles[0], rest.Sessions[2].Title)

	_, err = svc.Sessions.List(ctx, guest, "not a cursor!", 10)
	assert.Equal(t, "invalid cursor", fieldMessage(t, err, "cursor"))
}
