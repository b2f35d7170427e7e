// Package permission implements the notification permission gate.
//
// The user is asked at most once per store. The answer is kept in memory and
// persisted under StorageKey, so later runs and other gates sharing the store
// reuse it until it is changed with Set or cleared with Reset.
package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"spawnme/internal/storage"
	logx "spawnme/pkg/logx"
)

const StorageKey = "NotificationPermission"

type Decision string

const (
	Granted Decision = "granted"
	Denied  Decision = "denied"
)

func (d Decision) Valid() bool { return d == Granted || d == Denied }

// ParseDecision accepts granted/denied and the usual yes/no spellings.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "granted", "grant", "allow", "yes", "y":
		return Granted, nil
	case "denied", "deny", "no", "n":
		return Denied, nil
	}
	return "", fmt.Errorf("unknown permission decision %q", s)
}

// Prompter asks the user for a decision.
type Prompter interface {
	Prompt(ctx context.Context) (Decision, error)
}

// Gate answers permission requests, prompting at most once.
type Gate struct {
	store    storage.Store
	prompter Prompter
	log      logx.Logger

	mu     sync.Mutex
	cached Decision
}

func NewGate(store storage.Store, prompter Prompter, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{store: store, prompter: prompter, log: log}
}

// RequestPermission returns the remembered decision or prompts for one.
//
// Concurrent callers are serialized so only one prompt is ever shown. A prompt
// error is returned as-is and nothing is remembered.
func (g *Gate) RequestPermission(ctx context.Context) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cached != "" {
		return g.cached, nil
	}
	d, ok, err := g.loadLocked(ctx)
	if err != nil {
		return "", err
	}
	if ok {
		g.cached = d
		return d, nil
	}
	if g.prompter == nil {
		return "", errors.New("permission: no prompter configured")
	}

	d, err = g.prompter.Prompt(ctx)
	if err != nil {
		return "", fmt.Errorf("permission prompt: %w", err)
	}
	if !d.Valid() {
		return "", fmt.Errorf("permission prompt returned %q", d)
	}
	if err := g.storeLocked(ctx, d); err != nil {
		// The answer still holds for this process.
		g.log.Warn("permission not persisted", logx.String("decision", string(d)), logx.Err(err))
	}
	g.cached = d
	g.log.Info("permission decided", logx.String("decision", string(d)))
	return d, nil
}

// Status reports the remembered decision without prompting.
func (g *Gate) Status(ctx context.Context) (Decision, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cached != "" {
		return g.cached, true, nil
	}
	d, ok, err := g.loadLocked(ctx)
	if err != nil || !ok {
		return "", false, err
	}
	g.cached = d
	return d, true, nil
}

// Set records d as the user's answer.
func (g *Gate) Set(ctx context.Context, d Decision) error {
	if !d.Valid() {
		return fmt.Errorf("invalid permission decision %q", d)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.storeLocked(ctx, d); err != nil {
		return err
	}
	g.cached = d
	g.log.Info("permission set", logx.String("decision", string(d)))
	return nil
}

// Reset forgets the answer; the next request prompts again.
func (g *Gate) Reset(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.store.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("reset permission: %w", err)
	}
	g.cached = ""
	g.log.Info("permission reset")
	return nil
}

func (g *Gate) loadLocked(ctx context.Context) (Decision, bool, error) {
	b, ok, err := g.store.Get(ctx, StorageKey)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", StorageKey, err)
	}
	if !ok {
		return "", false, nil
	}
	var d Decision
	if err := json.Unmarshal(b, &d); err != nil || !d.Valid() {
		// Unreadable answers are treated as never asked.
		g.log.Warn("stored permission unreadable; will prompt again", logx.String("raw", string(b)))
		return "", false, nil
	}
	return d, true, nil
}

func (g *Gate) storeLocked(ctx context.Context, d Decision) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, StorageKey, b); err != nil {
		return fmt.Errorf("write %s: %w", StorageKey, err)
	}
	return nil
}
