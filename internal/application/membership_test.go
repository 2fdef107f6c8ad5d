package application_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sessionboard/internal/application"
	"github.com/example/sessionboard/internal/testfixtures"
)

func createSession(t *testing.T, svc *testfixtures.Services, owner application.Principal, title string, limit int) application.SessionView {
	t.Helper()
	start := svc.Clock.Now().Add(time.Hour)
	view, err := svc.Sessions.Create(context.Background(), owner, application.CreateSessionParams{
		Title:         title,
		Start:         start,
		End:           start.Add(time.Hour),
		AttendeeLimit: limit,
	})
	require.NoError(t, err)
	return view
}

func TestStandupScenario(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	a := principalOf(signup(t, svc, "actor-a"))
	b := principalOf(signup(t, svc, "actor-b"))
	c := principalOf(signup(t, svc, "actor-c"))

	standup := createSession(t, svc, a, "Standup", 1)

	outcome, err := svc.Memberships.Join(ctx, b, standup.ID)
	require.NoError(t, err)
	assert.Equal(t, application.JoinJoined, outcome)
	count, err := svc.Memberships.Count(ctx, standup.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	outcome, err = svc.Memberships.Join(ctx, c, standup.ID)
	require.NoError(t, err)
	assert.Equal(t, application.JoinFull, outcome)
	assert.ErrorIs(t, outcome.Err(), application.ErrSessionFull)

	left, err := svc.Memberships.Leave(ctx, b, standup.ID)
	require.NoError(t, err)
	assert.True(t, left)
	count, err = svc.Memberships.Count(ctx, standup.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	outcome, err = svc.Memberships.Join(ctx, c, standup.ID)
	require.NoError(t, err)
	assert.Equal(t, application.JoinJoined, outcome)

	isMember, err := svc.Memberships.IsMember(ctx, standup.ID, c.ActorID)
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestJoinRefusals(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))
	guest := principalOf(signup(t, svc, "guest"))

	open := createSession(t, svc, owner, "Open", 5)
	cancelled := createSession(t, svc, owner, "Cancelled", 5)
	_, err := svc.Sessions.Cancel(ctx, owner, cancelled.ID)
	require.NoError(t, err)

	outcome, err := svc.Memberships.Join(ctx, owner, open.ID)
	require.NoError(t, err)
	assert.Equal(t, application.JoinCreator, outcome)

	outcome, err = svc.Memberships.Join(ctx, guest, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, application.JoinCancelled, outcome)

	outcome, err = svc.Memberships.Join(ctx, guest, open.ID)
	require.NoError(t, err)
	require.Equal(t, application.JoinJoined, outcome)
	outcome, err = svc.Memberships.Join(ctx, guest, open.ID)
	require.NoError(t, err)
	assert.Equal(t, application.JoinAlreadyMember, outcome)
	assert.ErrorIs(t, outcome.Err(), application.ErrAlreadyExists)

	_, err = svc.Memberships.Join(ctx, application.Principal{}, open.ID)
	assert.ErrorIs(t, err, application.ErrUnauthorized)
	_, err = svc.Memberships.Join(ctx, guest, "missing")
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestJoinRefusedOncePast(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))
	guest := principalOf(signup(t, svc, "guest"))
	session := createSession(t, svc, owner, "Soon over", 5)

	svc.Clock.Advance(90 * time.Minute)
	outcome, err := svc.Memberships.Join(ctx, guest, session.ID)
	require.NoError(t, err)
	assert.Equal(t, application.JoinJoined, outcome, "ongoing sessions accept joins")

	svc.Clock.Advance(time.Hour)
	left, err := svc.Memberships.Leave(ctx, guest, session.ID)
	require.NoError(t, err)
	assert.True(t, left, "leaving is allowed after the end")

	outcome, err = svc.Memberships.Join(ctx, guest, session.ID)
	require.NoError(t, err)
	assert.Equal(t, application.JoinPast, outcome)
}

func TestLeaveWithoutMembership(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))
	session := createSession(t, svc, owner, "Quiet", 5)

	left, err := svc.Memberships.Leave(ctx, owner, session.ID)
	require.NoError(t, err)
	assert.False(t, left)
}

func TestConcurrentJoinsNeverOvershoot(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().Build(t)
	owner := principalOf(signup(t, svc, "owner"))

	const joiners = 6
	guests := make([]application.Principal, joiners)
	for i := range guests {
		guests[i] = principalOf(signup(t, svc, fmt.Sprintf("guest%d", i)))
	}

	for trial := 0; trial < 10; trial++ {
		limit := 1 + trial%3
		session := createSession(t, svc, owner, fmt.Sprintf("Trial %d", trial), limit)

		outcomes := make([]application.JoinOutcome, joiners)
		errs := make([]error, joiners)
		var wg sync.WaitGroup
		for i, guest := range guests {
			wg.Add(1)
			go func(i int, guest application.Principal) {
				defer wg.Done()
				outcomes[i], errs[i] = svc.Memberships.Join(ctx, guest, session.ID)
			}(i, guest)
		}
		wg.Wait()

		joined := 0
		for i := range outcomes {
			require.NoError(t, errs[i])
			switch outcomes[i] {
			case application.JoinJoined:
				joined++
			case application.JoinFull:
			default:
				t.Fatalf("trial %d: unexpected outcome %s", trial, outcomes[i])
			}
		}
		assert.Equal(t, limit, joined, "trial %d", trial)

		count, err := svc.Memberships.Count(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, limit, count, "trial %d", trial)
	}
}
