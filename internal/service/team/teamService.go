// Package team is the moderation state machine: team lifecycle, leader-only
// pinning and kicking, and leadership succession on departure.
package team

import (
	"context"
	"fmt"
	"strings"

	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/membership"
	"github.com/nikhil/taskhub/internal/models"
	"github.com/nikhil/taskhub/internal/sequencer"
)

const maxTeamNameLength = 100

// Authorizer decides membership and leadership.
type Authorizer interface {
	AuthorizeMember(ctx context.Context, teamID, userID int64) (membership.Decision, error)
	AuthorizeLeader(ctx context.Context, teamID, userID int64) (membership.Decision, error)
}

// Store is the persistence needed by the service.
type Store interface {
	CreateTeam(ctx context.Context, name string, creatorID int64) (models.Team, error)
	GetTeam(ctx context.Context, id int64) (models.Team, error)
	DeleteTeam(ctx context.Context, id int64) error
	ListMembers(ctx context.Context, teamID int64) ([]models.TeamMember, error)
	AddMember(ctx context.Context, teamID, userID int64) (models.TeamMember, error)
	RemoveMember(ctx context.Context, teamID, userID int64) (models.Succession, error)
	SetMessagePinned(ctx context.Context, teamID, messageID int64, pinned bool) error
	GetMessage(ctx context.Context, id int64) (models.TeamMessage, error)
}

// Fanout delivers an event to every subscriber of a team channel.
type Fanout interface {
	BroadcastToTeam(teamID int64, ev models.Event) (int, error)
}

// Evictor drops connections from team channels.
type Evictor interface {
	Evict(teamID, userID int64) int
	EvictTeam(teamID int64) int
}

// Notifier creates user notifications.
type Notifier interface {
	Notify(ctx context.Context, userID int64, typ, message string) (models.Notification, error)
}

// TeamService handles team-related operations
type TeamService struct {
	auth     Authorizer
	store    Store
	fanout   Fanout
	evictor  Evictor
	notifier Notifier
	seq      *sequencer.Sequencer
	Log      *logger.Logger
}

// NewTeamService initializes a new team service
func NewTeamService(auth Authorizer, store Store, fanout Fanout, evictor Evictor, notifier Notifier, seq *sequencer.Sequencer, log *logger.Logger) *TeamService {
	return &TeamService{
		auth:     auth,
		store:    store,
		fanout:   fanout,
		evictor:  evictor,
		notifier: notifier,
		seq:      seq,
		Log:      log,
	}
}

// Create makes creatorID the leader and sole member of a new team.
func (ts *TeamService) Create(ctx context.Context, creatorID int64, name string) (models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxTeamNameLength {
		return models.Team{}, fmt.Errorf("%w: team name must be 1-%d characters", models.ErrInvalidArgument, maxTeamNameLength)
	}

	t, err := ts.store.CreateTeam(ctx, name, creatorID)
	if err != nil {
		ts.Log.Error("Failed to create team", "error", err, "user_id", creatorID)
		return models.Team{}, err
	}
	ts.Log.Info("Team created", "team_id", t.ID, "user_id", creatorID)

	ts.notify(ctx, creatorID, models.NotificationTeamCreated, "Created team: "+t.Name)
	return t, nil
}

// Get returns a team with its members in succession order. Only members may
// read it; a non-member cannot tell a missing team from a foreign one.
func (ts *TeamService) Get(ctx context.Context, teamID, userID int64) (models.Team, error) {
	if err := ts.requireMember(ctx, teamID, userID); err != nil {
		return models.Team{}, err
	}
	t, err := ts.store.GetTeam(ctx, teamID)
	if err != nil {
		return models.Team{}, err
	}
	if t.Members, err = ts.store.ListMembers(ctx, teamID); err != nil {
		return models.Team{}, err
	}
	return t, nil
}

// IsLeader reports whether userID currently leads teamID. Non-members get
// ErrNotMember.
func (ts *TeamService) IsLeader(ctx context.Context, teamID, userID int64) (bool, error) {
	if err := ts.requireMember(ctx, teamID, userID); err != nil {
		return false, err
	}
	d, err := ts.auth.AuthorizeLeader(ctx, teamID, userID)
	return d == membership.Authorized, err
}

func (ts *TeamService) requireMember(ctx context.Context, teamID, userID int64) error {
	d, err := ts.auth.AuthorizeMember(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if d == membership.Denied {
		return models.ErrNotMember
	}
	return nil
}

// Join adds userID to teamID. Joining twice is an explicit error.
func (ts *TeamService) Join(ctx context.Context, teamID, userID int64) (models.TeamMember, error) {
	var m models.TeamMember
	err := ts.seq.Do(teamID, func() error {
		var err error
		m, err = ts.store.AddMember(ctx, teamID, userID)
		return err
	})
	if err != nil {
		return models.TeamMember{}, err
	}
	ts.Log.Info("Member joined team", "team_id", teamID, "user_id", userID)

	ts.notify(ctx, userID, models.NotificationTeamJoined, fmt.Sprintf("You joined the team: %d", teamID))
	return m, nil
}

// Quit removes userID from teamID. A non-member quitting is an explicit
// error. When the leader quits, leadership moves to the earliest-joined
// remaining member, or the team becomes leaderless.
func (ts *TeamService) Quit(ctx context.Context, teamID, userID int64) (models.Succession, error) {
	var s models.Succession
	err := ts.seq.Do(teamID, func() error {
		var err error
		if s, err = ts.store.RemoveMember(ctx, teamID, userID); err != nil {
			return err
		}
		ts.evictor.Evict(teamID, userID)
		return nil
	})
	if err != nil {
		return models.Succession{}, err
	}
	ts.Log.Info("Member quit team", "team_id", teamID, "user_id", userID, "remaining", s.RemainingCount)

	ts.announceSuccession(ctx, s)
	return s, nil
}

// Kick removes targetID from teamID on behalf of the leader. The kicked
// user's connections leave the team channel; no notification is sent to them.
func (ts *TeamService) Kick(ctx context.Context, teamID, actorID, targetID int64) (models.Succession, error) {
	var s models.Succession
	err := ts.seq.Do(teamID, func() error {
		d, err := ts.auth.AuthorizeLeader(ctx, teamID, actorID)
		if err != nil {
			return err
		}
		if d == membership.Denied {
			return models.ErrNotLeader
		}
		if targetID == actorID {
			return models.ErrCannotKickSelf
		}
		if s, err = ts.store.RemoveMember(ctx, teamID, targetID); err != nil {
			return err
		}
		ts.evictor.Evict(teamID, targetID)
		return nil
	})
	if err != nil {
		ts.Log.Info("Kick rejected", "team_id", teamID, "user_id", actorID, "target_id", targetID, "reason", err)
		return models.Succession{}, err
	}
	ts.Log.Audit("Member kicked", "team_id", teamID, "user_id", actorID, "target_id", targetID)
	return s, nil
}

// Pin sets is_pinned on a team message and re-broadcasts the record. Only
// the leader may pin; anyone else is silently denied.
func (ts *TeamService) Pin(ctx context.Context, teamID, userID, messageID int64, pinned bool) (membership.Decision, *models.TeamMessage, error) {
	var (
		decision membership.Decision
		msg      *models.TeamMessage
	)
	err := ts.seq.Do(teamID, func() error {
		d, err := ts.auth.AuthorizeLeader(ctx, teamID, userID)
		if err != nil {
			return err
		}
		decision = d
		if d == membership.Denied {
			ts.Log.Debug("Pin denied", "team_id", teamID, "user_id", userID, "message_id", messageID)
			return nil
		}

		if err := ts.store.SetMessagePinned(ctx, teamID, messageID, pinned); err != nil {
			return err
		}
		stored, err := ts.store.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		msg = &stored

		if _, err := ts.fanout.BroadcastToTeam(teamID, models.Event{Type: models.EventMessagePinned, Payload: stored}); err != nil {
			return fmt.Errorf("broadcast pin of message %d: %w", messageID, err)
		}
		return nil
	})
	return decision, msg, err
}

// Delete removes a team with its memberships and messages. Only the leader
// may delete; every connection leaves the team channel.
func (ts *TeamService) Delete(ctx context.Context, teamID, userID int64) error {
	err := ts.seq.Do(teamID, func() error {
		if _, err := ts.store.GetTeam(ctx, teamID); err != nil {
			return err
		}
		d, err := ts.auth.AuthorizeLeader(ctx, teamID, userID)
		if err != nil {
			return err
		}
		if d == membership.Denied {
			return models.ErrNotLeader
		}
		if err := ts.store.DeleteTeam(ctx, teamID); err != nil {
			return err
		}
		ts.evictor.EvictTeam(teamID)
		return nil
	})
	if err != nil {
		return err
	}
	ts.Log.Audit("Team deleted", "team_id", teamID, "user_id", userID)
	return nil
}

func (ts *TeamService) announceSuccession(ctx context.Context, s models.Succession) {
	if !s.WasLeader {
		return
	}
	if s.Leaderless() {
		ts.Log.Audit("Team is leaderless", "team_id", s.TeamID, "previous_leader_id", s.RemovedUserID)
		return
	}
	newLeader := *s.NewLeaderID
	ts.Log.Audit("Leadership transferred", "team_id", s.TeamID, "previous_leader_id", s.RemovedUserID, "leader_id", newLeader)
	ts.notify(ctx, newLeader, models.NotificationLeaderChanged,
		fmt.Sprintf("You are now the leader of team: %d", s.TeamID))
}

// notify never fails the calling operation; the notification is a side effect.
func (ts *TeamService) notify(ctx context.Context, userID int64, typ, message string) {
	if _, err := ts.notifier.Notify(ctx, userID, typ, message); err != nil {
		ts.Log.Error("Failed to notify user", "error", err, "user_id", userID, "type", typ)
	}
}
