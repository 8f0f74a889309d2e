package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
	"github.com/aceteam-ai/ilocalserver/internal/logging"
	"github.com/aceteam-ai/ilocalserver/internal/pubsub"
)

const (
	summary     = "Local Server"
	callTimeout = 5 * time.Second
)

// Watcher keeps a notification up while the server runs in foreground mode.
type Watcher struct {
	notifier Notifier
	address  func() string
	logger   *logging.Logger

	// id is the shown notification, 0 when none. Only touched by Handle.
	id uint32
}

// WatcherConfig holds the watcher's collaborators.
type WatcherConfig struct {
	Notifier Notifier
	// Address returns the server address for the notification body (optional).
	Address func() string
	Logger  *logging.Logger
}

// NewWatcher creates a watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.Address == nil {
		cfg.Address = func() string { return "" }
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("notify")
	}
	return &Watcher{
		notifier: cfg.Notifier,
		address:  cfg.Address,
		logger:   cfg.Logger,
	}
}

// Run handles events from sub until ctx is cancelled or sub is closed. Any
// notification still shown is withdrawn on the way out.
func (w *Watcher) Run(ctx context.Context, sub *pubsub.Subscription[lifecycle.StatusEvent]) error {
	defer w.withdraw(context.Background())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			w.Handle(ctx, ev)
		}
	}
}

// Handle reacts to one status event. Notifier errors are logged.
func (w *Watcher) Handle(ctx context.Context, ev lifecycle.StatusEvent) {
	if ev.Mode != lifecycle.ModeForeground {
		return
	}

	switch ev.State {
	case lifecycle.StateRunning:
		w.show(ctx, ev)
	case lifecycle.StateStopped, lifecycle.StateFailed:
		w.withdraw(ctx)
	}
}

// Showing reports whether a notification is currently up.
func (w *Watcher) Showing() bool {
	return w.id != 0
}

func (w *Watcher) show(ctx context.Context, ev lifecycle.StatusEvent) {
	body := ev.Message
	if addr := w.address(); addr != "" {
		body = fmt.Sprintf("Server is running at %s", addr)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	id, err := w.notifier.Notify(ctx, Notification{
		ReplacesID: w.id,
		Summary:    summary,
		Body:       body,
	})
	if err != nil {
		w.logger.Printf("show notification: %v", err)
		return
	}
	w.id = id
}

func (w *Watcher) withdraw(ctx context.Context) {
	if w.id == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := w.notifier.CloseNotification(ctx, w.id); err != nil {
		w.logger.Printf("close notification: %v", err)
	}
	w.id = 0
}
