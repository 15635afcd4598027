package store

import (
	"context"
	"fmt"

	"github.com/nikhil/taskhub/internal/models"
)

// InsertNotification persists a notification and returns its id.
func (s *Store) InsertNotification(ctx context.Context, userID int64, typ, message string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, message, is_read, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, typ, message, false, s.timestamp())
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("notification id: %w", err)
	}
	return id, nil
}

// GetNotification returns a notification by id.
func (s *Store) GetNotification(ctx context.Context, id int64) (models.Notification, error) {
	var n models.Notification
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, type, message, is_read, created_at FROM notifications WHERE id = ?`, id).
		Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return models.Notification{}, notFound(err, "notification")
	}
	return n, nil
}

// ListNotifications returns the newest notifications of a user first.
func (s *Store) ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, message, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	list := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkAllNotificationsRead flags every notification of a user as read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = ? WHERE user_id = ?`, true, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return result.RowsAffected()
}
