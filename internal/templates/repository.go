package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"spawnme/internal/storage"
	logx "spawnme/pkg/logx"
)

// Repository reads and writes the template list in a storage.Store.
//
// It holds no list state itself; see Library for the in-memory owner.
type Repository struct {
	store storage.Store
	key   string
	log   logx.Logger
}

func NewRepository(store storage.Store, log logx.Logger) *Repository {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Repository{store: store, key: StorageKey, log: log}
}

// Load reads the persisted list.
//
// A missing key yields an empty list. A malformed value yields a
// *DeserializationError.
func (r *Repository) Load(ctx context.Context) ([]Template, error) {
	b, ok, err := r.store.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.key, err)
	}
	if !ok {
		return []Template{}, nil
	}
	ts, err := Decode(b)
	if err != nil {
		return nil, &DeserializationError{Key: r.key, Err: err}
	}
	return ts, nil
}

// LoadOrEmpty is Load with every failure downgraded to an empty list.
// Broken local data must never stop startup.
func (r *Repository) LoadOrEmpty(ctx context.Context) []Template {
	ts, err := r.Load(ctx)
	if err != nil {
		r.log.Warn("templates unreadable; starting with an empty list", logx.String("key", r.key), logx.Err(err))
		return []Template{}
	}
	return ts
}

// Save overwrites the persisted list with ts in a single store write.
func (r *Repository) Save(ctx context.Context, ts []Template) error {
	b, err := Encode(ts)
	if err != nil {
		return &SerializationError{Key: r.key, Err: err}
	}
	if err := r.store.Set(ctx, r.key, b); err != nil {
		return &SerializationError{Key: r.key, Err: err}
	}
	r.log.Debug("templates saved", logx.Int("count", len(ts)))
	return nil
}

// Encode serializes ts as a JSON array; nil encodes as [].
func Encode(ts []Template) ([]byte, error) {
	if ts == nil {
		ts = []Template{}
	}
	return json.Marshal(ts)
}

// Decode parses a JSON array of templates. JSON null decodes to an empty list.
// Unknown object keys are ignored; trailing data is rejected.
func Decode(b []byte) ([]Template, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	var ts []Template
	if err := dec.Decode(&ts); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after template list")
	}
	if ts == nil {
		ts = []Template{}
	}
	return ts, nil
}
