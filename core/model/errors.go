package model

import "errors"

var (
	// ErrInvalidDock is returned when a dock number is outside its set or excluded.
	ErrInvalidDock = errors.New("invalid dock")
	// ErrUnknownDockSet is returned when no dock set exists for an id.
	ErrUnknownDockSet = errors.New("unknown dock set")
	// ErrNotFound is returned when an event id is unknown.
	ErrNotFound = errors.New("event not found")
	// ErrInvalidTransition is returned for any status change other than sent -> acked.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTransportUnavailable is returned when a session acts while disconnected.
	ErrTransportUnavailable = errors.New("transport unavailable")
)
