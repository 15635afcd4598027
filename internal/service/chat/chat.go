// Package chat is the broadcast engine: it admits connections to team
// channels and persists then fans out team messages.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/nikhil/taskhub/internal/hub"
	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/membership"
	"github.com/nikhil/taskhub/internal/models"
	"github.com/nikhil/taskhub/internal/sequencer"
)

// Authorizer decides membership.
type Authorizer interface {
	AuthorizeMember(ctx context.Context, teamID, userID int64) (membership.Decision, error)
}

// Store is the persistence needed by the engine.
type Store interface {
	InsertMessage(ctx context.Context, teamID, userID int64, content string) (int64, error)
	GetMessage(ctx context.Context, id int64) (models.TeamMessage, error)
	ListMessages(ctx context.Context, teamID int64) ([]models.TeamMessage, error)
}

// Fanout delivers an event to every subscriber of a team channel.
type Fanout interface {
	BroadcastToTeam(teamID int64, ev models.Event) (int, error)
}

// Registry subscribes connections to team channels.
type Registry interface {
	Subscribe(c *hub.Client, teamID int64) bool
}

// Engine is the broadcast engine.
type Engine struct {
	auth     Authorizer
	store    Store
	fanout   Fanout
	registry Registry
	seq      *sequencer.Sequencer
	Log      *logger.Logger
}

// NewEngine creates an engine. seq orders sends against membership changes
// of the same team.
func NewEngine(auth Authorizer, store Store, fanout Fanout, registry Registry, seq *sequencer.Sequencer, log *logger.Logger) *Engine {
	return &Engine{auth: auth, store: store, fanout: fanout, registry: registry, seq: seq, Log: log}
}

// Join subscribes c to teamID when its user is a member. A non-member join
// is a silent no-op reported only as Denied.
func (e *Engine) Join(ctx context.Context, c *hub.Client, teamID int64) (membership.Decision, error) {
	userID := c.Identity().UserID
	var decision membership.Decision
	err := e.seq.Do(teamID, func() error {
		d, err := e.auth.AuthorizeMember(ctx, teamID, userID)
		if err != nil {
			return err
		}
		decision = d
		if d == membership.Denied {
			e.Log.Debug("Join denied", "team_id", teamID, "user_id", userID)
			return nil
		}
		if !e.registry.Subscribe(c, teamID) {
			// the connection went away while the check ran
			decision = membership.Denied
		}
		return nil
	})
	return decision, err
}

// Send re-validates membership, persists content and broadcasts the stored
// record to the team channel, sender included. A non-member send is a
// silent no-op. Blank content is rejected with ErrInvalidArgument before
// any authorization.
func (e *Engine) Send(ctx context.Context, identity models.Identity, teamID int64, content string) (membership.Decision, *models.TeamMessage, error) {
	if strings.TrimSpace(content) == "" {
		return membership.Denied, nil, fmt.Errorf("%w: message content is empty", models.ErrInvalidArgument)
	}

	var (
		decision membership.Decision
		msg      *models.TeamMessage
	)
	err := e.seq.Do(teamID, func() error {
		d, err := e.auth.AuthorizeMember(ctx, teamID, identity.UserID)
		if err != nil {
			return err
		}
		decision = d
		if d == membership.Denied {
			e.Log.Debug("Send denied", "team_id", teamID, "user_id", identity.UserID)
			return nil
		}

		id, err := e.store.InsertMessage(ctx, teamID, identity.UserID, content)
		if err != nil {
			return fmt.Errorf("persist message: %w", err)
		}
		stored, err := e.store.GetMessage(ctx, id)
		if err != nil {
			return fmt.Errorf("load message %d: %w", id, err)
		}
		msg = &stored

		if _, err := e.fanout.BroadcastToTeam(teamID, models.Event{Type: models.EventNewMessage, Payload: stored}); err != nil {
			return fmt.Errorf("broadcast message %d: %w", id, err)
		}
		return nil
	})
	return decision, msg, err
}

// History returns the team's messages oldest first for a current member.
func (e *Engine) History(ctx context.Context, teamID, userID int64) ([]models.TeamMessage, error) {
	d, err := e.auth.AuthorizeMember(ctx, teamID, userID)
	if err != nil {
		return nil, err
	}
	if d == membership.Denied {
		return nil, models.ErrNotMember
	}
	return e.store.ListMessages(ctx, teamID)
}
