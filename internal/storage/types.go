package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Store is the minimal key-value API used by the repository, the permission
// gate and the notifier.
//
// Get returns ok=false (and a nil error) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "memory": process-local map (tests, dry runs)
//   - "file": single JSON document, replaced via tmp file + rename
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "redis": Redis server (keys optionally prefixed)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	Redis RedisConfig
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
}
