package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	logx "spawnme/pkg/logx"
)

// fileStore keeps every key in one JSON document on disk.
//
// All keys live in one JSON document:
//
//	{"version":1,"entries":{"SavedTemplates":{"json":[...]}}}
//
// JSON values are stored inline for readability; anything else is base64 ("raw").
//
// The CLI and a running serve process may share one document, so nothing is
// cached: every call re-reads <path> while holding flock on <path>.lock
// (shared for Get, exclusive for Set/Delete). Writes go to <path>.tmp and are
// renamed over <path>.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	closed bool
}

type fileDoc struct {
	Version int                  `json:"version"`
	Entries map[string]fileEntry `json:"entries"`
}

type fileEntry struct {
	JSON json.RawMessage `json:"json,omitempty"`
	Raw  []byte          `json:"raw,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path}
	unlock, err := s.lock(unix.LOCK_EX)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := loadFileDoc(path); err != nil {
		// Keep the unreadable document for inspection and start clean; a broken
		// store must not keep the app from starting.
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if rerr := os.Rename(path, aside); rerr != nil {
			return nil, fmt.Errorf("storage file %s unreadable (%v) and could not be moved aside: %w", path, err, rerr)
		}
		log.Warn("storage file unreadable; moved aside", logx.String("path", path), logx.String("moved_to", aside), logx.Err(err))
	}
	return s, nil
}

// lock takes an advisory lock on the sidecar lock file. Closing the
// descriptor releases it.
func (s *fileStore) lock(how int) (func(), error) {
	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	for {
		err = unix.Flock(int(f.Fd()), how)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock %s: %w", f.Name(), err)
	}
	return func() { _ = f.Close() }, nil
}

func loadFileDoc(path string) (map[string][]byte, error) {
	out := map[string][]byte{}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return out, nil
	}
	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	for k, e := range doc.Entries {
		if e.JSON != nil {
			out[k] = append([]byte(nil), e.JSON...)
			continue
		}
		out[k] = e.Raw
	}
	return out, nil
}

func (s *fileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	unlock, err := s.lock(unix.LOCK_SH)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	entries, err := loadFileDoc(s.path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", s.path, err)
	}
	v, ok := entries[key]
	return v, ok, nil
}

func (s *fileStore) Set(ctx context.Context, key string, value []byte) error {
	_ = ctx
	return s.update(func(entries map[string][]byte) bool {
		entries[key] = append([]byte(nil), value...)
		return true
	})
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	return s.update(func(entries map[string][]byte) bool {
		if _, ok := entries[key]; !ok {
			return false
		}
		delete(entries, key)
		return true
	})
}

// update runs one read-modify-write cycle on the current document. fn
// reports whether anything changed.
func (s *fileStore) update(fn func(map[string][]byte) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	unlock, err := s.lock(unix.LOCK_EX)
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := loadFileDoc(s.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	if !fn(entries) {
		return nil
	}
	return s.write(entries)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) write(entries map[string][]byte) error {
	doc := fileDoc{Version: 1, Entries: make(map[string]fileEntry, len(entries))}
	for k, v := range entries {
		if json.Valid(v) {
			doc.Entries[k] = fileEntry{JSON: json.RawMessage(v)}
		} else {
			doc.Entries[k] = fileEntry{Raw: v}
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.log.Trace("storage flushed", logx.String("path", s.path), logx.Int("keys", len(doc.Entries)))
	return nil
}
