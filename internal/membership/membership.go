// Package membership answers team membership and leadership questions.
// Every call is a fresh point query: membership can change between two
// events on the same connection, so nothing is cached.
package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikhil/taskhub/internal/models"
)

// Decision is the internal outcome of an authorization check. Callers decide
// whether a Denied is silent or surfaced.
type Decision int

const (
	Denied Decision = iota
	Authorized
)

func (d Decision) String() string {
	if d == Authorized {
		return "authorized"
	}
	return "denied"
}

// Store is the persistence needed by the oracle.
type Store interface {
	IsMember(ctx context.Context, teamID, userID int64) (bool, error)
	TeamLeader(ctx context.Context, teamID int64) (leaderID int64, ok bool, err error)
}

// Oracle is the single source of truth for authorization decisions.
type Oracle struct {
	store Store
}

// NewOracle creates an oracle over store.
func NewOracle(store Store) *Oracle {
	return &Oracle{store: store}
}

// IsMember reports whether userID currently belongs to teamID.
func (o *Oracle) IsMember(ctx context.Context, teamID, userID int64) (bool, error) {
	ok, err := o.store.IsMember(ctx, teamID, userID)
	if err != nil {
		return false, fmt.Errorf("membership of user %d in team %d: %w", userID, teamID, err)
	}
	return ok, nil
}

// Leader returns the current leader. ok is false when the team is leaderless
// or does not exist.
func (o *Oracle) Leader(ctx context.Context, teamID int64) (leaderID int64, ok bool, err error) {
	leaderID, ok, err = o.store.TeamLeader(ctx, teamID)
	if errors.Is(err, models.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("leader of team %d: %w", teamID, err)
	}
	return leaderID, ok, nil
}

// AuthorizeMember grants when userID is a member of teamID.
func (o *Oracle) AuthorizeMember(ctx context.Context, teamID, userID int64) (Decision, error) {
	ok, err := o.IsMember(ctx, teamID, userID)
	if err != nil || !ok {
		return Denied, err
	}
	return Authorized, nil
}

// AuthorizeLeader grants when userID is the current leader of teamID.
func (o *Oracle) AuthorizeLeader(ctx context.Context, teamID, userID int64) (Decision, error) {
	leader, ok, err := o.Leader(ctx, teamID)
	if err != nil || !ok || leader != userID {
		return Denied, err
	}
	return Authorized, nil
}
