package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aceteam-ai/ilocalserver/internal/logging"
	"github.com/aceteam-ai/ilocalserver/internal/pubsub"
	"github.com/google/uuid"
)

// Instance is a running server the coordinator owns.
type Instance interface {
	// Stop releases the listener. Calling it more than once is a no-op.
	Stop() error
	// Address is the host:port observers can reach the server on.
	Address() string
}

// StartFunc binds a new server for mode. A returned error means nothing is
// bound.
type StartFunc func(mode RunMode) (Instance, error)

// Coordinator decides which single mode is active and starts/stops the
// server accordingly.
type Coordinator struct {
	start  StartFunc
	events *pubsub.Broadcaster[StatusEvent]
	logger *logging.Logger
	now    func() time.Time

	// transition serializes Begin, End and Restart.
	transition sync.Mutex
	instance   Instance

	mu       sync.RWMutex
	snapshot Snapshot
}

// CoordinatorConfig holds the coordinator's collaborators.
type CoordinatorConfig struct {
	Start  StartFunc
	Events *pubsub.Broadcaster[StatusEvent] // Created if nil
	Logger *logging.Logger
	Now    func() time.Time
}

// NewCoordinator creates a coordinator in the stopped state.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Events == nil {
		cfg.Events = pubsub.New[StatusEvent](pubsub.DefaultBuffer)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("lifecycle")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		start:  cfg.Start,
		events: cfg.Events,
		logger: cfg.Logger,
		now:    cfg.Now,
		snapshot: Snapshot{
			State:   StateStopped,
			Message: stoppedMessage,
			Since:   cfg.Now(),
		},
	}
}

// Events returns the broadcaster transitions are published on.
func (c *Coordinator) Events() *pubsub.Broadcaster[StatusEvent] {
	return c.events
}

// Subscribe is shorthand for Events().Subscribe().
func (c *Coordinator) Subscribe() *pubsub.Subscription[StatusEvent] {
	return c.events.Subscribe()
}

// Status returns the current state. It does not wait for an in-flight
// transition.
func (c *Coordinator) Status() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Begin enters mode. While a mode of equal or higher precedence is running
// the request is ignored and Begin returns nil. Otherwise the running
// instance is stopped before the new one is started. A start failure leaves
// the coordinator in StateFailed with no instance and is returned.
func (c *Coordinator) Begin(mode RunMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}

	c.transition.Lock()
	defer c.transition.Unlock()

	cur := c.Status()
	if cur.State == StateRunning && !mode.Outranks(cur.Mode) {
		c.logger.Debugf("begin %s ignored: %s mode is running", mode, cur.Mode)
		return nil
	}

	var stopErr error
	if c.instance != nil {
		c.logger.Printf("switching from %s to %s mode", cur.Mode, mode)
		stopErr = c.stopLocked(cur.Mode)
	}

	if err := c.startLocked(mode); err != nil {
		return errors.Join(err, stopErr)
	}
	return nil
}

// End stops the running instance. Calling End while stopped does nothing.
func (c *Coordinator) End() error {
	c.transition.Lock()
	defer c.transition.Unlock()

	cur := c.Status()
	if cur.State == StateStopped {
		return nil
	}
	return c.stopLocked(cur.Mode)
}

// Restart stops and starts the current mode.
func (c *Coordinator) Restart() error {
	c.transition.Lock()
	defer c.transition.Unlock()

	cur := c.Status()
	if cur.State != StateRunning {
		return ErrNotRunning
	}

	c.logger.Printf("restarting %s mode", cur.Mode)
	stopErr := c.stopLocked(cur.Mode)
	if err := c.startLocked(cur.Mode); err != nil {
		return errors.Join(err, stopErr)
	}
	return nil
}

func (c *Coordinator) startLocked(mode RunMode) error {
	c.set(Snapshot{State: StateStarting, Mode: mode, Message: "Local server is starting"})

	inst, err := c.start(mode)
	if err == nil && inst == nil {
		err = errors.New("server start returned no instance")
	}
	if err != nil {
		c.logger.Printf("could not start %s mode: %v", mode, err)
		c.set(Snapshot{
			State:   StateFailed,
			Mode:    mode,
			Message: fmt.Sprintf("%s: %v", stoppedMessage, err),
			Reason:  err.Error(),
		})
		return fmt.Errorf("start %s mode: %w", mode, err)
	}

	c.instance = inst
	c.logger.Printf("server running in %s mode on %s", mode, inst.Address())
	c.set(Snapshot{
		State:   StateRunning,
		Mode:    mode,
		Message: mode.RunningMessage(),
		Address: inst.Address(),
	})
	return nil
}

func (c *Coordinator) stopLocked(mode RunMode) error {
	var err error
	if c.instance != nil {
		if err = c.instance.Stop(); err != nil {
			c.logger.Printf("stopping %s mode: %v", mode, err)
			err = fmt.Errorf("stop %s mode: %w", mode, err)
		}
		c.instance = nil
	}
	c.set(Snapshot{State: StateStopped, Mode: mode, Message: stoppedMessage})
	return err
}

// set records the new state and publishes it.
func (c *Coordinator) set(s Snapshot) {
	s.Since = c.now()

	c.mu.Lock()
	c.snapshot = s
	c.mu.Unlock()

	c.events.Publish(StatusEvent{
		ID:      uuid.NewString(),
		Mode:    s.Mode,
		State:   s.State,
		Message: s.Message,
		Time:    s.Since,
	})
}
