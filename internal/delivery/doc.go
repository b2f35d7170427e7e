// Package delivery contains the sinks that actually show a notification:
// the log, the freedesktop notification daemon and a Telegram chat.
package delivery
