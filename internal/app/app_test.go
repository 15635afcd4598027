package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/taskhub/internal/config"
	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/models"
	"github.com/nikhil/taskhub/internal/store/storetest"
)

const jwtSecret = "e2e-secret"

type harness struct {
	t   *testing.T
	app *App
	srv *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 1},
		Database: storetest.Config(t),
		Auth:     config.AuthConfig{JWTSecret: jwtSecret},
		Realtime: config.RealtimeConfig{SerializeTeamEvents: true, SendBuffer: 64, HistoryLimit: 50},
	}
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler)
	t.Cleanup(func() {
		srv.Close()
		require.NoError(t, a.Close())
	})
	return &harness{t: t, app: a, srv: srv}
}

func (h *harness) user(name string) (models.User, string) {
	h.t.Helper()
	u, err := h.app.Store.CreateUser(context.Background(), models.User{Username: name, Email: name + "@example.com"})
	require.NoError(h.t, err)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": u.ID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(h.t, err)
	return u, token
}

func (h *harness) do(method, path, token string, body any, out any) int {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(h.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
}

func (h *harness) dial(token string) *websocket.Conn {
	h.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL()+"?token="+token, nil)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": typ, "payload": payload}))
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string, out any) {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var env models.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type == typ {
			require.NoError(t, json.Unmarshal(env.Payload, out))
			return
		}
	}
}

func TestAlphaOverWebSocket(t *testing.T) {
	h := newHarness(t)
	u1, t1 := h.user("u1")
	u2, t2 := h.user("u2")

	var alpha models.Team
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/teams", t1, map[string]string{"name": "Alpha"}, &alpha))
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, fmt.Sprintf("/api/teams/%d/join", alpha.ID), t2, nil, nil))
	require.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, fmt.Sprintf("/api/teams/%d/join", alpha.ID), t2, nil, nil))

	c1 := h.dial(t1)
	c2 := h.dial(t2)
	send(t, c1, models.EventJoinTeam, alpha.ID)
	send(t, c2, models.EventJoinTeam, map[string]any{"teamId": fmt.Sprint(alpha.ID)})
	require.Eventually(t, func() bool { return len(h.app.Hub.MembersOf(alpha.ID)) == 2 }, 5*time.Second, 10*time.Millisecond)

	send(t, c1, models.EventSendMessage, map[string]any{"teamId": alpha.ID, "content": "standup at 9"})
	var m1, m2 models.TeamMessage
	readUntil(t, c1, models.EventNewMessage, &m1)
	readUntil(t, c2, models.EventNewMessage, &m2)
	require.Equal(t, m1.ID, m2.ID)
	require.Equal(t, "standup at 9", m2.Content)
	require.Equal(t, u1.ID, m2.UserID)
	require.Equal(t, "u1", m2.Username)

	var s models.Succession
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, fmt.Sprintf("/api/teams/%d/quit", alpha.ID), t1, nil, &s))
	require.Equal(t, u2.ID, *s.NewLeaderID)

	var leaderNote models.Notification
	readUntil(t, c2, models.EventNotification, &leaderNote)
	require.Equal(t, models.NotificationLeaderChanged, leaderNote.Type)

	send(t, c2, models.EventPinMessage, map[string]any{"teamId": alpha.ID, "messageId": m2.ID, "pin": true})
	var pinned models.TeamMessage
	readUntil(t, c2, models.EventMessagePinned, &pinned)
	require.Equal(t, m2.ID, pinned.ID)
	require.True(t, pinned.IsPinned)

	var history []models.TeamMessage
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, fmt.Sprintf("/api/teams/%d/messages", alpha.ID), t2, nil, &history))
	require.Len(t, history, 1)
	require.True(t, history[0].IsPinned)
	require.Equal(t, http.StatusForbidden, h.do(http.MethodGet, fmt.Sprintf("/api/teams/%d/messages", alpha.ID), t1, nil, nil))

	var notes []models.Notification
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/notifications", t2, nil, &notes))
	require.Len(t, notes, 2)
	require.Equal(t, models.NotificationLeaderChanged, notes[0].Type)
	require.Equal(t, models.NotificationTeamJoined, notes[1].Type)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/notifications/mark-all-read", t2, nil, nil))
}

func TestModerationErrorsOverREST(t *testing.T) {
	h := newHarness(t)
	_, leaderToken := h.user("leader")
	member, memberToken := h.user("member")
	ghost, _ := h.user("ghost")

	var tm models.Team
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/teams", leaderToken, map[string]string{"name": "Alpha"}, &tm))
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, fmt.Sprintf("/api/teams/%d/join", tm.ID), memberToken, nil, nil))

	kick := fmt.Sprintf("/api/teams/%d/kick", tm.ID)
	require.Equal(t, http.StatusForbidden, h.do(http.MethodPost, kick, memberToken, map[string]any{"user_id": ghost.ID}, nil))
	require.Equal(t, http.StatusNotFound, h.do(http.MethodPost, kick, leaderToken, map[string]any{"user_id": ghost.ID}, nil))
	require.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, kick, leaderToken, map[string]any{"user_id": tm.LeaderID}, nil))
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, kick, leaderToken, map[string]any{"user_id": member.ID}, nil))

	require.Equal(t, http.StatusForbidden, h.do(http.MethodPost, fmt.Sprintf("/api/teams/%d/quit", tm.ID), memberToken, nil, nil))

	var leader map[string]bool
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, fmt.Sprintf("/api/teams/%d/is-leader", tm.ID), leaderToken, nil, &leader))
	require.True(t, leader["is_leader"])

	require.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodPost, fmt.Sprintf("/api/teams/%d/chat-attachments", tm.ID), leaderToken, nil, nil))
	require.Equal(t, http.StatusForbidden, h.do(http.MethodDelete, fmt.Sprintf("/api/teams/%d", tm.ID), memberToken, nil, nil))
	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, fmt.Sprintf("/api/teams/%d", tm.ID), leaderToken, nil, nil))
	require.Equal(t, http.StatusForbidden, h.do(http.MethodGet, fmt.Sprintf("/api/teams/%d", tm.ID), leaderToken, nil, nil))
	require.Equal(t, http.StatusForbidden, h.do(http.MethodGet, fmt.Sprintf("/api/teams/%d/is-leader", tm.ID), memberToken, nil, nil))
}

func TestHandshakeRejectsBadCredential(t *testing.T) {
	h := newHarness(t)
	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL()+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, h.app.Hub.ClientCount())

	require.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/notifications", "", nil, nil))
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "", nil, nil))
}
