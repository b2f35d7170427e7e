package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"

	logx "spawnme/pkg/logx"
)

// ConfigManager holds the current config of one file and hands validated
// changes to subscribers.
type ConfigManager struct {
	path string

	mu      sync.RWMutex
	cfg     *Config
	sum     uint64
	missing bool

	subMu sync.Mutex
	subs  map[<-chan *Config]chan *Config

	log      logx.Logger
	validate func(ctx context.Context, cfg *Config) error
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, log: logx.Nop(), subs: map[<-chan *Config]chan *Config{}}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator sets the check a reloaded config must pass before it is
// committed. Load does not call it.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validate = fn
}

// Parse reads the file without committing it.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(m.path, b)
}

// ParseBytes decodes one config document with defaults applied. Unknown keys
// and trailing data are errors. name selects YAML (.yaml/.yml) or JSON.
func ParseBytes(name string, data []byte) (*Config, error) {
	jb, err := documentJSON(name, data)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: unexpected data after the config object", name)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Load reads and commits the file. Without a file Default() is committed and
// Missing reports true.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	missing := errors.Is(err, fs.ErrNotExist)
	switch {
	case missing:
		cfg = Default()
	case err != nil:
		return nil, err
	}
	m.commit(cfg, missing)
	return cfg, nil
}

func (m *ConfigManager) commit(cfg *Config, missing bool) {
	sum := checksum(cfg)
	m.mu.Lock()
	m.cfg, m.sum, m.missing = cfg, sum, missing
	m.mu.Unlock()
}

// checksum identifies a decoded config, so edits that only touch comments or
// formatting are not reported as changes.
func checksum(cfg *Config) uint64 {
	d := xxhash.New()
	if err := json.NewEncoder(d).Encode(cfg); err != nil {
		return 0
	}
	return d.Sum64()
}

func (m *ConfigManager) Missing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.missing
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Subscribe returns a channel holding at most one config: the newest one not
// yet received. Slow readers skip intermediate versions.
func (m *ConfigManager) Subscribe() <-chan *Config {
	ch := make(chan *Config, 1)
	m.subMu.Lock()
	m.subs[ch] = ch
	m.subMu.Unlock()
	return ch
}

// Unsubscribe closes ch. Unknown channels are ignored.
func (m *ConfigManager) Unsubscribe(ch <-chan *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if c, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(c)
	}
}

func (m *ConfigManager) publish(cfg *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		// Only publish writes to ch, under subMu; after the drain the send
		// cannot block.
		select {
		case <-ch:
		default:
		}
		ch <- cfg
	}
}

// reload re-reads the file and commits and publishes it when it decodes,
// differs from the current config and passes the validator.
func (m *ConfigManager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config reload skipped", logx.String("path", m.path), logx.Err(err))
		return
	}
	sum := checksum(cfg)
	m.mu.RLock()
	same := sum != 0 && sum == m.sum
	m.mu.RUnlock()
	if same {
		m.log.Debug("config file touched without changes", logx.String("path", m.path))
		return
	}
	if m.validate != nil {
		if err := m.validate(ctx, cfg); err != nil {
			m.log.Warn("config rejected; keeping current", logx.String("path", m.path), logx.Err(err))
			return
		}
	}
	m.commit(cfg, false)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.Any("checksum", sum))
}
