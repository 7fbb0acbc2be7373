package core

import "errors"

var (
	// ErrInvalidJoin is returned when a join request lacks a name or a room.
	ErrInvalidJoin = errors.New("invalid join: name and room are required")
	// ErrSessionClosed is returned when a join races with the session's disconnect.
	ErrSessionClosed = errors.New("session closed")
)
