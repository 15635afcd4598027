package models

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument signals failed input validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnauthorized signals a missing or invalid credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAlreadyMember signals a join by an existing member.
	ErrAlreadyMember = errors.New("already a member of this team")
	// ErrNotMember signals an operation that requires membership.
	ErrNotMember = errors.New("not a team member")
	// ErrNotLeader signals a leader-only operation by someone else.
	ErrNotLeader = errors.New("not the team leader")
	// ErrCannotKickSelf signals the leader trying to kick themselves.
	ErrCannotKickSelf = errors.New("leader cannot kick themselves")
)
