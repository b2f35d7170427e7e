package config

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "spawnme/pkg/logx"
)

const (
	// settle is how long the file must stay quiet before a reload; editors
	// often write a file several times per save.
	settle = 250 * time.Millisecond

	watchRetryMin = 500 * time.Millisecond
	watchRetryMax = 10 * time.Second
)

// Watch reloads the config whenever its file changes, until ctx is done.
// The parent directory is watched so rename-on-save and a file created after
// startup are both seen. A broken watcher is recreated with backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	retry := watchRetryMin
	for {
		err := m.watchOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		m.log.Warn("config watcher restarting", logx.Err(err), logx.Duration("in", retry))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
		retry = min(retry*2, watchRetryMax)
	}
}

// watchOnce runs one fsnotify watcher until it breaks or ctx is done.
func (m *ConfigManager) watchOnce(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	dir, name := filepath.Dir(m.path), filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return err
	}
	m.log.Debug("watching config", logx.String("path", m.path))

	quiet := time.NewTimer(settle)
	quiet.Stop()
	defer quiet.Stop()
	kick := func() {
		quiet.Stop()
		quiet.Reset(settle)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("fsnotify events closed")
			}
			if filepath.Base(ev.Name) == name && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				kick()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("fsnotify errors closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; the file may have changed.
				kick()
				continue
			}
			return err
		case <-quiet.C:
			m.reload(ctx)
		}
	}
}
