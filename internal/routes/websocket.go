package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/taskhub/internal/handlers"
	"github.com/nikhil/taskhub/internal/middleware"
)

// RegisterWebSocketRoutes registers all WebSocket related routes
func RegisterWebSocketRoutes(router *mux.Router, auth *middleware.Authenticator, wsHandler *handlers.WebSocketHandler) {
	// WebSocket endpoint with authentication via header or query parameter
	router.Handle("/ws", auth.WebSocketAuthMiddleware(http.HandlerFunc(wsHandler.HandleWebSocket))).Methods(http.MethodGet)
}
