// Package notify posts the desktop notification that accompanies the
// foreground run mode.
package notify

import (
	"context"
	"fmt"
	"time"

	godbus "github.com/godbus/dbus/v5"
)

const (
	dbusName  = "org.freedesktop.Notifications"
	dbusPath  = "/org/freedesktop/Notifications"
	dbusIface = "org.freedesktop.Notifications"
)

// Notification is one desktop notification.
type Notification struct {
	// ReplacesID updates an existing notification in place when non-zero.
	ReplacesID uint32
	Summary    string
	Body       string
	// Timeout of zero keeps the notification up until it is closed.
	Timeout time.Duration
}

// Notifier shows and withdraws notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) (uint32, error)
	CloseNotification(ctx context.Context, id uint32) error
}

// DBusNotifier talks to the freedesktop notification daemon on the session bus.
type DBusNotifier struct {
	conn    *godbus.Conn
	obj     godbus.BusObject
	appName string
}

// NewDBusNotifier opens a private session bus connection.
func NewDBusNotifier(appName string) (*DBusNotifier, error) {
	conn, err := godbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DBusNotifier{
		conn:    conn,
		obj:     conn.Object(dbusName, dbusPath),
		appName: appName,
	}, nil
}

func (d *DBusNotifier) Notify(ctx context.Context, n Notification) (uint32, error) {
	hints := map[string]godbus.Variant{
		"urgency":  godbus.MakeVariant(byte(1)),
		"resident": godbus.MakeVariant(true),
	}
	timeout := int32(n.Timeout / time.Millisecond)

	var id uint32
	err := d.obj.CallWithContext(ctx, dbusIface+".Notify", 0,
		d.appName, n.ReplacesID, "", n.Summary, n.Body, []string{}, hints, timeout,
	).Store(&id)
	if err != nil {
		return 0, fmt.Errorf("notify: %w", err)
	}
	return id, nil
}

func (d *DBusNotifier) CloseNotification(ctx context.Context, id uint32) error {
	if err := d.obj.CallWithContext(ctx, dbusIface+".CloseNotification", 0, id).Err; err != nil {
		return fmt.Errorf("close notification %d: %w", id, err)
	}
	return nil
}

// Close releases the bus connection.
func (d *DBusNotifier) Close() error {
	return d.conn.Close()
}
