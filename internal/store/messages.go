package store

import (
	"context"
	"fmt"

	"github.com/nikhil/taskhub/internal/models"
)

const messageColumns = `
	SELECT m.id, m.team_id, m.user_id, m.content, m.is_pinned, m.created_at, u.username, u.avatar
	FROM team_messages m
	JOIN users u ON u.id = m.user_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (models.TeamMessage, error) {
	var m models.TeamMessage
	err := row.Scan(&m.ID, &m.TeamID, &m.UserID, &m.Content, &m.IsPinned, &m.CreatedAt, &m.Username, &m.Avatar)
	return m, err
}

// InsertMessage persists a message and returns its id. Ids increase strictly.
func (s *Store) InsertMessage(ctx context.Context, teamID, userID int64, content string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO team_messages (team_id, user_id, content, is_pinned, created_at) VALUES (?, ?, ?, ?, ?)`,
		teamID, userID, content, false, s.timestamp())
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message id: %w", err)
	}
	return id, nil
}

// GetMessage returns a message in the shape echoed to clients.
func (s *Store) GetMessage(ctx context.Context, id int64) (models.TeamMessage, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, messageColumns+` WHERE m.id = ?`, id))
	if err != nil {
		return models.TeamMessage{}, notFound(err, "message")
	}
	return m, nil
}

// SetMessagePinned updates is_pinned of a message that belongs to teamID.
func (s *Store) SetMessagePinned(ctx context.Context, teamID, messageID int64, pinned bool) error {
	var owner int64
	err := s.db.QueryRowContext(ctx, `SELECT team_id FROM team_messages WHERE id = ?`, messageID).Scan(&owner)
	if err != nil {
		return notFound(err, "message")
	}
	if owner != teamID {
		return fmt.Errorf("message %d in team %d: %w", messageID, teamID, models.ErrNotFound)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE team_messages SET is_pinned = ? WHERE id = ?`, pinned, messageID); err != nil {
		return fmt.Errorf("update pin: %w", err)
	}
	return nil
}

// ListMessages returns a team's history oldest first.
func (s *Store) ListMessages(ctx context.Context, teamID int64) ([]models.TeamMessage, error) {
	rows, err := s.db.QueryContext(ctx, messageColumns+`
		WHERE m.team_id = ?
		ORDER BY m.created_at ASC, m.id ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []models.TeamMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
