// Package realtime dispatches inbound connection events to the chat and
// moderation services. Each connection gets one dispatch loop, so its events
// run strictly in arrival order.
package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nikhil/taskhub/internal/hub"
	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/membership"
	"github.com/nikhil/taskhub/internal/models"
)

// Chat admits connections to team channels and sends messages.
type Chat interface {
	Join(ctx context.Context, c *hub.Client, teamID int64) (membership.Decision, error)
	Send(ctx context.Context, identity models.Identity, teamID int64, content string) (membership.Decision, *models.TeamMessage, error)
}

// Moderator pins messages.
type Moderator interface {
	Pin(ctx context.Context, teamID, userID, messageID int64, pinned bool) (membership.Decision, *models.TeamMessage, error)
}

// Dispatcher routes envelopes by type.
type Dispatcher struct {
	chat      Chat
	moderator Moderator
	Log       *logger.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(chat Chat, moderator Moderator, log *logger.Logger) *Dispatcher {
	return &Dispatcher{chat: chat, moderator: moderator, Log: log}
}

// Serve handles c's inbound events until the stream closes or ctx ends.
func (d *Dispatcher) Serve(ctx context.Context, c *hub.Client) {
	log := d.Log.WithUser(c.Identity().UserID)
	log.Debug("Dispatch loop started", "client_id", c.ID())
	defer log.Debug("Dispatch loop stopped", "client_id", c.ID())

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-c.Inbound():
			if !ok {
				return
			}
			d.Handle(ctx, c, env)
		}
	}
}

// Handle runs one event. Failures are logged and never end the connection.
func (d *Dispatcher) Handle(ctx context.Context, c *hub.Client, env models.Envelope) {
	identity := c.Identity()
	log := d.Log.WithUser(identity.UserID)

	var (
		decision membership.Decision
		err      error
	)
	switch env.Type {
	case models.EventJoinTeam:
		var p models.JoinTeamPayload
		if !decode(log, env, &p) {
			return
		}
		decision, err = d.chat.Join(ctx, c, p.TeamID.Int64())

	case models.EventSendMessage:
		var p models.SendMessagePayload
		if !decode(log, env, &p) {
			return
		}
		decision, _, err = d.chat.Send(ctx, identity, p.TeamID.Int64(), p.Content)

	case models.EventPinMessage:
		var p models.PinMessagePayload
		if !decode(log, env, &p) {
			return
		}
		decision, _, err = d.moderator.Pin(ctx, p.TeamID.Int64(), identity.UserID, p.MessageID.Int64(), p.Pin)

	default:
		log.Debug("Dropping unknown event", "type", env.Type)
		return
	}

	if errors.Is(err, models.ErrInvalidArgument) {
		log.Debug("Dropping invalid event", "type", env.Type, "error", err)
		return
	}
	if err != nil {
		log.Error("Event failed", "type", env.Type, "error", err)
		return
	}
	log.Debug("Event handled", "type", env.Type, "decision", decision.String())
}

func decode(log *logger.Logger, env models.Envelope, v any) bool {
	if len(env.Payload) == 0 {
		log.Debug("Dropping event without payload", "type", env.Type)
		return false
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		log.Debug("Dropping malformed payload", "type", env.Type, "error", err)
		return false
	}
	return true
}
