package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nikhil/taskhub/internal/hub"
	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/membership"
	"github.com/nikhil/taskhub/internal/models"
	"github.com/nikhil/taskhub/internal/sequencer"
	"github.com/nikhil/taskhub/internal/service/chat"
	"github.com/nikhil/taskhub/internal/store"
	"github.com/nikhil/taskhub/internal/store/storetest"
)

type fixture struct {
	store  *store.Store
	hub    *hub.Hub
	engine *chat.Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := storetest.New(t)
	h := hub.New(hub.Options{SendBuffer: 32}, logger.Nop())
	e := chat.NewEngine(membership.NewOracle(s), s, h, h, sequencer.New(true), logger.Nop())
	return &fixture{store: s, hub: h, engine: e}
}

func (f *fixture) connect(u models.User) *hub.Client {
	c := f.hub.NewClient(nil, models.IdentityOf(u))
	f.hub.Register(c)
	return c
}

func frames(t *testing.T, c *hub.Client, typ string) []models.TeamMessage {
	t.Helper()
	var out []models.TeamMessage
	for {
		select {
		case frame := <-c.Outbound():
			var env models.Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			if env.Type != typ {
				continue
			}
			var m models.TeamMessage
			require.NoError(t, json.Unmarshal(env.Payload, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestNonMemberJoinIsSilentlyDenied(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	owner := storetest.User(t, f.store, "owner")
	stranger := storetest.User(t, f.store, "stranger")
	team, err := f.store.CreateTeam(ctx, "Alpha", owner.ID)
	require.NoError(t, err)

	oc, sc := f.connect(owner), f.connect(stranger)
	d, err := f.engine.Join(ctx, sc, team.ID)
	require.NoError(t, err)
	require.Equal(t, membership.Denied, d)
	require.False(t, f.hub.IsSubscribed(sc, team.ID))

	d, err = f.engine.Join(ctx, oc, team.ID)
	require.NoError(t, err)
	require.Equal(t, membership.Authorized, d)

	_, _, err = f.engine.Send(ctx, models.IdentityOf(owner), team.ID, "private")
	require.NoError(t, err)
	require.Empty(t, frames(t, sc, models.EventNewMessage))
	require.Len(t, frames(t, oc, models.EventNewMessage), 1)
}

func TestSendReachesEverySubscriberWithSameID(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	owner := storetest.User(t, f.store, "owner")
	team, err := f.store.CreateTeam(ctx, "Alpha", owner.ID)
	require.NoError(t, err)

	var clients []*hub.Client
	for _, name := range []string{"a", "b", "c"} {
		u := storetest.User(t, f.store, name)
		_, err := f.store.AddMember(ctx, team.ID, u.ID)
		require.NoError(t, err)
		c := f.connect(u)
		_, err = f.engine.Join(ctx, c, team.ID)
		require.NoError(t, err)
		clients = append(clients, c)
	}
	sender := f.connect(owner)
	_, err = f.engine.Join(ctx, sender, team.ID)
	require.NoError(t, err)
	clients = append(clients, sender)

	d, msg, err := f.engine.Send(ctx, models.IdentityOf(owner), team.ID, "standup at 9")
	require.NoError(t, err)
	require.Equal(t, membership.Authorized, d)
	require.NotNil(t, msg)
	require.Equal(t, "owner", msg.Username)

	for _, c := range clients {
		got := frames(t, c, models.EventNewMessage)
		require.Len(t, got, 1)
		require.Equal(t, msg.ID, got[0].ID)
		require.Equal(t, owner.ID, got[0].UserID)
	}
}

func TestMessagesArriveInPersistOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	owner := storetest.User(t, f.store, "owner")
	team, err := f.store.CreateTeam(ctx, "Alpha", owner.ID)
	require.NoError(t, err)
	c := f.connect(owner)
	_, err = f.engine.Join(ctx, c, team.ID)
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three"} {
		_, _, err := f.engine.Send(ctx, models.IdentityOf(owner), team.ID, text)
		require.NoError(t, err)
	}
	got := frames(t, c, models.EventNewMessage)
	require.Len(t, got, 3)
	require.Less(t, got[0].ID, got[1].ID)
	require.Less(t, got[1].ID, got[2].ID)
	require.Equal(t, "three", got[2].Content)

	history, err := f.engine.History(ctx, team.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three"},
		[]string{history[0].Content, history[1].Content, history[2].Content})
}

func TestNonMemberSendPersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	owner := storetest.User(t, f.store, "owner")
	stranger := storetest.User(t, f.store, "stranger")
	team, err := f.store.CreateTeam(ctx, "Alpha", owner.ID)
	require.NoError(t, err)
	oc := f.connect(owner)
	_, err = f.engine.Join(ctx, oc, team.ID)
	require.NoError(t, err)

	d, msg, err := f.engine.Send(ctx, models.IdentityOf(stranger), team.ID, "let me in")
	require.NoError(t, err)
	require.Equal(t, membership.Denied, d)
	require.Nil(t, msg)
	require.Empty(t, frames(t, oc, models.EventNewMessage))

	history, err := f.store.ListMessages(ctx, team.ID)
	require.NoError(t, err)
	require.Empty(t, history)

	_, err = f.engine.History(ctx, team.ID, stranger.ID)
	require.ErrorIs(t, err, models.ErrNotMember)
}

func TestBlankMessageIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	owner := storetest.User(t, f.store, "owner")
	team, err := f.store.CreateTeam(ctx, "Alpha", owner.ID)
	require.NoError(t, err)

	_, msg, err := f.engine.Send(ctx, models.IdentityOf(owner), team.ID, "   ")
	require.ErrorIs(t, err, models.ErrInvalidArgument)
	require.Nil(t, msg)
	history, err := f.store.ListMessages(ctx, team.ID)
	require.NoError(t, err)
	require.Empty(t, history)
}

type brokenAuthorizer struct{}

func (brokenAuthorizer) AuthorizeMember(context.Context, int64, int64) (membership.Decision, error) {
	return membership.Denied, errors.New("connection reset")
}

func TestInfrastructureFailureAbortsOnlyTheEvent(t *testing.T) {
	s := storetest.New(t)
	h := hub.New(hub.Options{}, logger.Nop())
	e := chat.NewEngine(brokenAuthorizer{}, s, h, h, sequencer.New(true), logger.Nop())

	u := storetest.User(t, s, "u")
	c := h.NewClient(nil, models.IdentityOf(u))
	h.Register(c)

	_, _, err := e.Send(context.Background(), models.IdentityOf(u), 1, "hello")
	require.Error(t, err)
	_, err = e.Join(context.Background(), c, 1)
	require.Error(t, err)
	require.True(t, h.IsUserConnected(u.ID), "connection survives the failure")
}
