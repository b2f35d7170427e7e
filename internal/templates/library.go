package templates

import (
	"context"
	"sync"

	logx "spawnme/pkg/logx"
)

// Library owns the in-memory template list for one session.
//
// The list is loaded once when the library is opened and written back in full
// after every Create/Remove. The store is only treated as the source of truth
// at open time.
type Library struct {
	repo *Repository
	log  logx.Logger

	mu    sync.Mutex
	items []Template
}

// OpenLibrary loads the persisted list, falling back to an empty list when it
// can't be read.
func OpenLibrary(ctx context.Context, repo *Repository, log logx.Logger) *Library {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Library{repo: repo, log: log, items: repo.LoadOrEmpty(ctx)}
}

// List returns a copy of the current list in insertion order.
func (l *Library) List() []Template {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Template(nil), l.items...)
}

func (l *Library) Get(id int) (Template, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Find(l.items, id)
}

// Create appends a template and persists the list.
//
// On a *SerializationError the template is still part of this session's list.
func (l *Library) Create(ctx context.Context, title, body string) (Template, error) {
	l.mu.Lock()
	l.items = Add(l.items, title, body)
	created := l.items[len(l.items)-1]
	snapshot := append([]Template(nil), l.items...)
	l.mu.Unlock()

	if err := l.repo.Save(ctx, snapshot); err != nil {
		l.log.Error("template save failed", logx.Int("id", created.ID), logx.Err(err))
		return created, err
	}
	l.log.Info("template created", logx.Int("id", created.ID), logx.String("title", created.Title))
	return created, nil
}

// Remove deletes every template with id and persists the list.
// It reports whether anything was removed; removing an unknown id writes nothing.
func (l *Library) Remove(ctx context.Context, id int) (bool, error) {
	l.mu.Lock()
	before := len(l.items)
	l.items = Delete(l.items, id)
	removed := len(l.items) != before
	snapshot := append([]Template(nil), l.items...)
	l.mu.Unlock()

	if !removed {
		return false, nil
	}
	if err := l.repo.Save(ctx, snapshot); err != nil {
		l.log.Error("template save failed", logx.Int("id", id), logx.Err(err))
		return true, err
	}
	l.log.Info("template deleted", logx.Int("id", id))
	return true, nil
}
