package delivery

import (
	"context"
	"time"
)

// Notification is what a sink is asked to show.
type Notification struct {
	ID    string
	Title string
	Body  string
	DueAt time.Time
}

type Sink interface {
	Deliver(ctx context.Context, n Notification) error
	Name() string
}

// Config selects and configures sinks. The log sink is used when nothing
// else is enabled.
type Config struct {
	Log      bool
	Desktop  DesktopConfig
	Telegram TelegramConfig
}

type DesktopConfig struct {
	Enabled bool
	AppName string
	Icon    string
	// Expire is passed to the daemon; 0 lets it decide.
	Expire time.Duration
}

type TelegramConfig struct {
	Enabled        bool
	Token          string
	ChatID         int64
	ThreadID       int
	DisablePreview bool
}
