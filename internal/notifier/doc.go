// Package notifier schedules one-shot notifications.
//
// Schedule asks the Authorizer for permission, then arms a timer for the
// requested delay. When the timer fires the notification is queued to a small
// worker pool which rate limits hand-off to the delivery.Sink. A registered
// notification cannot be cancelled and is never retried or deduplicated.
//
// # Pending journal
//
// With Config.PersistPending set, armed notifications are written to the store
// under PendingKey and re-armed by the next Start, so a daemon restart does not
// lose them. Entries are removed once handed to the sink.
package notifier
