// Package storage provides the key-value persistence port used by spawnme.
//
// Callers read and overwrite whole values under well-known keys:
//   - "SavedTemplates"         notification templates (JSON array)
//   - "NotificationPermission" cached permission decision
//   - "PendingNotifications"   armed one-shot deliveries (serve mode)
//
// A Set either fully replaces the previous value or leaves it untouched.
package storage
