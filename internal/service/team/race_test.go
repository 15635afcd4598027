package team_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nikhil/taskhub/internal/membership"
	"github.com/nikhil/taskhub/internal/models"
	"github.com/nikhil/taskhub/internal/store/storetest"
)

type raceOutcome struct {
	decision membership.Decision
	msg      *models.TeamMessage
	leader   []models.TeamMessage
	target   []models.TeamMessage
	stored   []models.TeamMessage
}

// kickDuringSend runs a send by the target and the leader's kick of that
// target at the same time.
func kickDuringSend(t *testing.T, f *fixture, round int) raceOutcome {
	t.Helper()
	ctx := context.Background()
	l := storetest.User(t, f.store, fmt.Sprintf("leader%d", round))
	a := storetest.User(t, f.store, fmt.Sprintf("member%d", round))
	tm, err := f.teams.Create(ctx, l.ID, fmt.Sprintf("Team %d", round))
	require.NoError(t, err)
	_, err = f.teams.Join(ctx, tm.ID, a.ID)
	require.NoError(t, err)
	lc := f.connect(t, l, tm.ID)
	ac := f.connect(t, a, tm.ID)

	var (
		wg      sync.WaitGroup
		out     raceOutcome
		sendErr error
		kickErr error
	)
	start := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		out.decision, out.msg, sendErr = f.chat.Send(ctx, models.IdentityOf(a), tm.ID, "racing the kick")
	}()
	go func() {
		defer wg.Done()
		<-start
		_, kickErr = f.teams.Kick(ctx, tm.ID, l.ID, a.ID)
	}()
	close(start)
	wg.Wait()

	require.NoError(t, sendErr)
	require.NoError(t, kickErr)
	require.False(t, f.hub.IsSubscribed(ac, tm.ID), "kicked member is evicted")
	require.True(t, f.hub.IsSubscribed(lc, tm.ID))

	out.leader = ofType(t, events(t, lc), models.EventNewMessage)
	out.target = ofType(t, events(t, ac), models.EventNewMessage)
	out.stored, err = f.store.ListMessages(ctx, tm.ID)
	require.NoError(t, err)
	return out
}

// requireConsistentSend checks that decision, stored history and the
// leader's deliveries agree.
func requireConsistentSend(t *testing.T, out raceOutcome) {
	t.Helper()
	if out.decision == membership.Denied {
		require.Nil(t, out.msg)
		require.Empty(t, out.stored)
		require.Empty(t, out.leader)
		require.Empty(t, out.target)
		return
	}
	require.NotNil(t, out.msg)
	require.Len(t, out.stored, 1)
	require.Equal(t, out.msg.ID, out.stored[0].ID)
	require.Len(t, out.leader, 1)
	require.Equal(t, out.msg.ID, out.leader[0].ID)
}

func TestKickAndSendAreSequencedPerTeam(t *testing.T) {
	f := setupWith(t, true)
	for round := 0; round < 30; round++ {
		out := kickDuringSend(t, f, round)
		requireConsistentSend(t, out)
		if out.decision == membership.Authorized {
			// the send completed before the kick, so the sender heard it too
			require.Len(t, out.target, 1)
			require.Equal(t, out.msg.ID, out.target[0].ID)
		}
	}
}

func TestUnsequencedKickStillEvicts(t *testing.T) {
	f := setupWith(t, false)
	for round := 0; round < 30; round++ {
		out := kickDuringSend(t, f, round)
		requireConsistentSend(t, out)
		require.LessOrEqual(t, len(out.target), 1)
	}
}
