package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/middleware"
	"github.com/nikhil/taskhub/internal/models"
)

// NotificationService reads and acknowledges a user's notifications.
type NotificationService interface {
	History(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	MarkAllRead(ctx context.Context, userID int64) error
}

// NotificationHandler serves the /api/notifications routes.
type NotificationHandler struct {
	notifications NotificationService
	Log           *logger.Logger
}

func NewNotificationHandler(notifications NotificationService, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, Log: log}
}

// List handles GET /api/notifications, newest first.
func (nh *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := nh.notifications.History(r.Context(), identity.UserID, limit)
	if err != nil {
		nh.Log.Error("Failed to list notifications", "error", err, "user_id", identity.UserID)
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// MarkAllRead handles POST /api/notifications/mark-all-read.
func (nh *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	if err := nh.notifications.MarkAllRead(r.Context(), identity.UserID); err != nil {
		nh.Log.Error("Failed to mark notifications read", "error", err, "user_id", identity.UserID)
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "All notifications marked as read"})
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health handles GET /healthz.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			respondWithError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
