package notifier

import (
	"context"
	"time"

	"spawnme/internal/permission"
)

// PendingKey is the store key of the pending journal.
const PendingKey = "PendingNotifications"

const (
	EventRequested  = "notification.requested"
	EventRegistered = "notification.registered"
	EventRejected   = "notification.rejected"
	EventDelivered  = "notification.delivered"
	EventFailed     = "notification.failed"
)

type Config struct {
	Workers     int
	QueueSize   int
	RatePerSec  int
	SendTimeout time.Duration
	HistorySize int
	// PersistPending journals armed notifications to the store.
	PersistPending bool
}

// Authorizer answers whether notifications may be shown.
type Authorizer interface {
	RequestPermission(ctx context.Context) (permission.Decision, error)
}

// Request is a single scheduling call. Delay 0 means now.
type Request struct {
	Title string
	Body  string
	Delay time.Duration
}

type State string

const (
	StateRegistered State = "registered"
	StateRejected   State = "rejected"
	StateDelivered  State = "delivered"
	StateFailed     State = "failed"
)

// Handle identifies one scheduled notification.
type Handle struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	RequestedAt time.Time `json:"requested_at"`
	DueAt       time.Time `json:"due_at"`
	State       State     `json:"state"`
}

type HistoryItem struct {
	ID    string
	Title string
	At    time.Time
	Sink  string
	Err   string
}

// NotificationEvent is the Data of every notifier event on the bus.
type NotificationEvent struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	DueAt time.Time `json:"due_at,omitempty"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

type pendingRecord struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	DueAt time.Time `json:"due_at"`
}
