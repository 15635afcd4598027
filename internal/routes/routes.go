package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/taskhub/internal/handlers"
	"github.com/nikhil/taskhub/internal/middleware"
	teamroutes "github.com/nikhil/taskhub/internal/routes/TeamRoutes"
)

// Deps are the handlers mounted on the router.
type Deps struct {
	Auth          *middleware.Authenticator
	WebSocket     *handlers.WebSocketHandler
	Teams         *handlers.TeamHandler
	Notifications *handlers.NotificationHandler
	Health        http.HandlerFunc
}

// RegisterAllRoutes builds the router with every route module.
func RegisterAllRoutes(deps Deps) *mux.Router {
	router := mux.NewRouter()

	// List of all route registration functions
	routeModules := []func(*mux.Router){
		func(r *mux.Router) { RegisterWebSocketRoutes(r, deps.Auth, deps.WebSocket) },
		func(r *mux.Router) {
			teamroutes.TeamRoutes(r, deps.Teams, deps.Auth.AuthMiddleware, middleware.ResponseWrapperMiddleware)
		},
		func(r *mux.Router) { NotificationRoutes(r, deps.Auth, deps.Notifications) },
		func(r *mux.Router) { r.HandleFunc("/healthz", deps.Health).Methods(http.MethodGet) },
	}
	for _, register := range routeModules {
		register(router)
	}

	return router
}

// NotificationRoutes registers the notification history routes.
func NotificationRoutes(router *mux.Router, auth *middleware.Authenticator, nh *handlers.NotificationHandler) {
	protectedRouter := router.PathPrefix("/api/notifications").Subrouter()
	protectedRouter.Use(auth.AuthMiddleware, middleware.ResponseWrapperMiddleware)
	protectedRouter.HandleFunc("", nh.List).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/mark-all-read", nh.MarkAllRead).Methods(http.MethodPost)
}
