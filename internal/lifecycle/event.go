// Package lifecycle owns which run mode the diagnostic server is in.
//
// The Coordinator is the sole holder of the running server instance. Every
// Begin/End goes through one mutex, so two instances are never bound at the
// same time, and each transition is announced as a StatusEvent.
//
// The transitions:
//
//	stopped  -> starting -> running | failed
//	running  -> stopped (End, or superseded by a higher-precedence Begin)
//	failed   -> starting | stopped
package lifecycle

import (
	"errors"
	"time"
)

// State is the coordinator's lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateFailed   State = "failed"
)

const stoppedMessage = "Local server is not working"

var (
	// ErrInvalidMode is returned for unknown mode names or values.
	ErrInvalidMode = errors.New("invalid run mode")
	// ErrNotRunning is returned by Restart when no mode is active.
	ErrNotRunning = errors.New("local server is not running")
)

// StatusEvent is an immutable record of one transition.
type StatusEvent struct {
	ID      string    `json:"id"`
	Mode    RunMode   `json:"mode"`
	State   State     `json:"state"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Snapshot is the coordinator's current state.
type Snapshot struct {
	State   State     `json:"state"`
	Mode    RunMode   `json:"mode"`
	Message string    `json:"message"`
	Reason  string    `json:"reason,omitempty"`
	Address string    `json:"address,omitempty"`
	Since   time.Time `json:"since"`
}
