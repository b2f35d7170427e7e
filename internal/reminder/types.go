package reminder

import (
	"context"
	"time"

	"spawnme/internal/notifier"
	"spawnme/internal/templates"
)

// Entry is one recurring reminder. It either names a saved template or
// carries its own title and body.
type Entry struct {
	Name       string
	Schedule   string
	TemplateID int
	Title      string
	Body       string
}

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Berlin"
	Entries  []Entry
}

// Scheduler is the part of the notifier a reminder needs.
type Scheduler interface {
	Schedule(ctx context.Context, req notifier.Request) (notifier.Handle, error)
}

// TemplateSource returns the current saved templates.
type TemplateSource interface {
	LoadOrEmpty(ctx context.Context) []templates.Template
}

type Info struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}
