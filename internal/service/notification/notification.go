// Package notification persists per-user notifications and pushes them to
// the recipient's user channel when a connection is live.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/models"
)

// DefaultHistoryLimit bounds History when no limit is given.
const DefaultHistoryLimit = 50

// Store is the persistence needed by the service.
type Store interface {
	InsertNotification(ctx context.Context, userID int64, typ, message string) (int64, error)
	GetNotification(ctx context.Context, id int64) (models.Notification, error)
	ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error)
	GetUser(ctx context.Context, id int64) (models.User, error)
}

// Pusher delivers an event to every live connection of a user.
type Pusher interface {
	SendToUser(userID int64, ev models.Event) (int, error)
}

// Mailer mirrors notifications by email.
type Mailer interface {
	IsConfigured() bool
	SendEmail(to []string, subject, body string) error
}

// Service is the notification fanout service.
type Service struct {
	store  Store
	pusher Pusher
	mailer Mailer
	limit  int
	Log    *logger.Logger
}

// NewService creates the service. mailer may be nil.
func NewService(store Store, pusher Pusher, mailer Mailer, historyLimit int, log *logger.Logger) *Service {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Service{store: store, pusher: pusher, mailer: mailer, limit: historyLimit, Log: log}
}

// Notify persists a notification first, then pushes the stored record to
// the user's live connections. Push and mail are fire-and-forget: their
// failures are logged and never undo the stored record.
func (s *Service) Notify(ctx context.Context, userID int64, typ, message string) (models.Notification, error) {
	if typ == "" {
		return models.Notification{}, fmt.Errorf("%w: notification type is required", models.ErrInvalidArgument)
	}

	id, err := s.store.InsertNotification(ctx, userID, typ, message)
	if err != nil {
		s.Log.Error("Failed to insert notification", "error", err, "user_id", userID, "type", typ)
		return models.Notification{}, err
	}
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		s.Log.Error("Failed to load notification", "error", err, "notification_id", id)
		return models.Notification{}, err
	}

	delivered, err := s.pusher.SendToUser(userID, models.Event{Type: models.EventNotification, Payload: n})
	if err != nil {
		s.Log.Warn("Failed to push notification", "error", err, "notification_id", id, "user_id", userID)
	} else {
		s.Log.Debug("Notification stored", "notification_id", id, "user_id", userID, "type", typ, "pushed", delivered)
	}

	s.mail(n)
	return n, nil
}

func (s *Service) mail(n models.Notification) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	go func() {
		user, err := s.store.GetUser(context.Background(), n.UserID)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				s.Log.Warn("Failed to look up notification recipient", "error", err, "user_id", n.UserID)
			}
			return
		}
		if user.Email == "" {
			return
		}
		subject := "New Notification: " + strings.Replace(n.Type, "_", " ", 1)
		if err := s.mailer.SendEmail([]string{user.Email}, subject, n.Message); err != nil {
			s.Log.Warn("Failed to mail notification", "error", err, "notification_id", n.ID)
		}
	}()
}

// History returns the newest notifications of userID, bounded by the
// configured limit. It does not depend on connection state.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	return s.store.ListNotifications(ctx, userID, limit)
}

// MarkAllRead flags every notification of userID as read.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) error {
	_, err := s.store.MarkAllNotificationsRead(ctx, userID)
	return err
}
