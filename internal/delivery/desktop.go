package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsNotify = "org.freedesktop.Notifications.Notify"
)

// DesktopSink shows notifications through the freedesktop notification
// daemon on the session bus.
type DesktopSink struct {
	cfg  DesktopConfig
	conn *dbus.Conn
	obj  dbus.BusObject
}

func NewDesktopSink(cfg DesktopConfig) (*DesktopSink, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	s := newDesktopSink(cfg, conn.Object(notificationsDest, notificationsPath))
	s.conn = conn
	return s, nil
}

func newDesktopSink(cfg DesktopConfig, obj dbus.BusObject) *DesktopSink {
	if strings.TrimSpace(cfg.AppName) == "" {
		cfg.AppName = "spawnme"
	}
	return &DesktopSink{cfg: cfg, obj: obj}
}

func (s *DesktopSink) Name() string { return "desktop" }

func (s *DesktopSink) Deliver(ctx context.Context, n Notification) error {
	expire := int32(-1)
	if s.cfg.Expire > 0 {
		expire = int32(s.cfg.Expire.Milliseconds())
	}
	call := s.obj.CallWithContext(ctx, notificationsNotify, 0,
		s.cfg.AppName,
		uint32(0),
		s.cfg.Icon,
		n.Title,
		n.Body,
		[]string{},
		map[string]dbus.Variant{},
		expire,
	)
	if call.Err != nil {
		return fmt.Errorf("desktop notify: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("desktop notify reply: %w", err)
	}
	return nil
}

func (s *DesktopSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
