package teamroutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/taskhub/internal/handlers"
)

func TeamRoutes(router *mux.Router, teamHandler *handlers.TeamHandler, guard ...mux.MiddlewareFunc) {
	protectedRouter := router.PathPrefix("/api/teams").Subrouter()
	protectedRouter.Use(guard...)
	protectedRouter.HandleFunc("", teamHandler.CreateTeam).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/{team_id:[0-9]+}", teamHandler.GetTeam).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/{team_id:[0-9]+}", teamHandler.DeleteTeam).Methods(http.MethodDelete)
	protectedRouter.HandleFunc("/{team_id:[0-9]+}/join", teamHandler.JoinTeam).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/{team_id:[0-9]+}/quit", teamHandler.QuitTeam).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/{team_id:[0-9]+}/kick", teamHandler.KickMember).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/{team_id:[0-9]+}/is-leader", teamHandler.IsLeader).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/{team_id:[0-9]+}/messages", teamHandler.GetMessages).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/{team_id:[0-9]+}/chat-attachments", teamHandler.UploadAttachment).Methods(http.MethodPost)
}
