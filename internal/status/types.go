// Package status serves the diagnostic page and the reboot endpoint.
//
// A Server is a factory: each Start binds a fresh listener and returns an
// Instance that owns it until Stop. The lifecycle coordinator decides when
// instances come and go.
//
// Routes:
//   - /restart answers "Device is rebooting..." and reboots the host out of band
//   - anything else renders uptime, CPU temperature, memory, battery and the
//     bound address as HTML
package status

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultPort is the fixed port the diagnostic page is served on.
	DefaultPort = 8080

	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 5 * time.Second

	// rebootTimeout bounds a single reboot attempt.
	rebootTimeout = 30 * time.Second

	rebootingMessage = "Device is rebooting..."
	unavailable      = "N/A"
)

// Rebooter restarts the host. Implementations live in the platform package.
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// RebooterFunc adapts a function to the Rebooter interface.
type RebooterFunc func(ctx context.Context) error

func (f RebooterFunc) Reboot(ctx context.Context) error {
	return f(ctx)
}

// BindError is returned by Start when the listener cannot be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
