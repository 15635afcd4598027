package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/nikhil/taskhub/internal/hub"
	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/middleware"
)

// Dispatcher runs the event loop of one connection.
type Dispatcher interface {
	Serve(ctx context.Context, c *hub.Client)
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub        *hub.Hub
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	Log        *logger.Logger
}

// NewWebSocketHandler creates a new WebSocket handler. An empty
// allowedOrigins accepts any origin.
func NewWebSocketHandler(h *hub.Hub, dispatcher Dispatcher, allowedOrigins []string, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        h,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		Log: log,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// HandleWebSocket upgrades an authenticated request and starts the pumps and
// the dispatch loop. The identity was bound by WebSocketAuthMiddleware.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("Error upgrading connection", "error", err, "user_id", identity.UserID)
		return
	}

	client := h.hub.NewClient(conn, identity)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
	go h.dispatcher.Serve(context.WithoutCancel(r.Context()), client)
}
