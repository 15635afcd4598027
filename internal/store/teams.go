package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nikhil/taskhub/internal/models"
)

// CreateTeam inserts a team led by its creator and the creator's membership
// in one transaction.
func (s *Store) CreateTeam(ctx context.Context, name string, creatorID int64) (models.Team, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Team{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() // Will be ignored if transaction is committed

	now := s.timestamp()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO teams (name, leader_id, created_at) VALUES (?, ?, ?)`, name, creatorID, now)
	if err != nil {
		return models.Team{}, fmt.Errorf("insert team: %w", err)
	}
	teamID, err := result.LastInsertId()
	if err != nil {
		return models.Team{}, fmt.Errorf("team id: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO team_members (team_id, user_id, joined_at) VALUES (?, ?, ?)`, teamID, creatorID, now)
	if err != nil {
		return models.Team{}, fmt.Errorf("insert creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Team{}, fmt.Errorf("commit: %w", err)
	}

	leader := creatorID
	return models.Team{ID: teamID, Name: name, LeaderID: &leader, CreatedAt: now}, nil
}

// GetTeam returns a team without its members.
func (s *Store) GetTeam(ctx context.Context, id int64) (models.Team, error) {
	var (
		t      models.Team
		leader sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, leader_id, created_at FROM teams WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &leader, &t.CreatedAt)
	if err != nil {
		return models.Team{}, notFound(err, "team")
	}
	t.LeaderID = nullableID(leader)
	return t, nil
}

// DeleteTeam removes a team with its memberships and messages.
func (s *Store) DeleteTeam(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM team_messages WHERE team_id = ?`,
		`DELETE FROM team_members WHERE team_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete team rows: %w", err)
		}
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("team: %w", models.ErrNotFound)
	}
	return tx.Commit()
}

// ListMembers returns members in succession order.
func (s *Store) ListMembers(ctx context.Context, teamID int64) ([]models.TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tm.id, tm.team_id, tm.user_id, u.username, u.email, tm.joined_at
		FROM team_members tm
		JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = ?
		ORDER BY tm.joined_at ASC, tm.id ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := []models.TeamMember{}
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.ID, &m.TeamID, &m.UserID, &m.Username, &m.Email, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember creates a membership for an existing team.
func (s *Store) AddMember(ctx context.Context, teamID, userID int64) (models.TeamMember, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.TeamMember{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM teams WHERE id = ?`+s.lockClause, teamID).Scan(&exists)
	if err != nil {
		return models.TeamMember{}, notFound(err, "team")
	}

	var already int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID).Scan(&already)
	if err != nil {
		return models.TeamMember{}, fmt.Errorf("check membership: %w", err)
	}
	if already > 0 {
		return models.TeamMember{}, models.ErrAlreadyMember
	}

	m := models.TeamMember{TeamID: teamID, UserID: userID, JoinedAt: s.timestamp()}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO team_members (team_id, user_id, joined_at) VALUES (?, ?, ?)`, teamID, userID, m.JoinedAt)
	if err != nil {
		return models.TeamMember{}, fmt.Errorf("insert membership: %w", err)
	}
	if m.ID, err = result.LastInsertId(); err != nil {
		return models.TeamMember{}, fmt.Errorf("membership id: %w", err)
	}
	return m, tx.Commit()
}

// IsMember is a point query against team_members.
func (s *Store) IsMember(ctx context.Context, teamID, userID int64) (bool, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return n > 0, nil
}

// TeamLeader returns the leader id; ok is false for a leaderless team.
func (s *Store) TeamLeader(ctx context.Context, teamID int64) (leaderID int64, ok bool, err error) {
	var leader sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT leader_id FROM teams WHERE id = ?`, teamID).Scan(&leader)
	if err != nil {
		return 0, false, notFound(err, "team")
	}
	return leader.Int64, leader.Valid, nil
}

// RemoveMember deletes a membership and, when the removed user led the team,
// hands leadership to the earliest-joined remaining member or clears it.
// Both steps commit together.
func (s *Store) RemoveMember(ctx context.Context, teamID, userID int64) (models.Succession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Succession{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var leader sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT leader_id FROM teams WHERE id = ?`+s.lockClause, teamID).Scan(&leader)
	if err != nil {
		return models.Succession{}, notFound(err, "team")
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID)
	if err != nil {
		return models.Succession{}, fmt.Errorf("delete membership: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return models.Succession{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return models.Succession{}, models.ErrNotMember
	}

	out := models.Succession{
		TeamID:        teamID,
		RemovedUserID: userID,
		WasLeader:     leader.Valid && leader.Int64 == userID,
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM team_members WHERE team_id = ?`, teamID).Scan(&out.RemainingCount); err != nil {
		return models.Succession{}, fmt.Errorf("count members: %w", err)
	}

	if out.WasLeader {
		var next sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT user_id FROM team_members
			WHERE team_id = ?
			ORDER BY joined_at ASC, id ASC
			LIMIT 1`, teamID).Scan(&next)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return models.Succession{}, fmt.Errorf("select successor: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE teams SET leader_id = ? WHERE id = ?`, next, teamID); err != nil {
			return models.Succession{}, fmt.Errorf("update leader: %w", err)
		}
		out.NewLeaderID = nullableID(next)
	}

	if err := tx.Commit(); err != nil {
		return models.Succession{}, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
