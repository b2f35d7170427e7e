package config

// Config is the on-disk configuration. JSON and YAML are both accepted;
// unknown keys are rejected.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
	Permission PermissionConfig `json:"permission"`
	Notifier   *NotifierConfig  `json:"notifier,omitempty"`
	Delivery   DeliveryConfig   `json:"delivery"`
	Reminders  RemindersConfig  `json:"reminders"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the key-value store holding templates, the
// permission answer and the pending journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./spawnme.db" }
//
// If the section is omitted a JSON file store at DefaultStorePath is used.
type StorageConfig struct {
	Driver      string       `json:"driver"`
	Path        string       `json:"path,omitempty"`
	BusyTimeout string       `json:"busy_timeout,omitempty"` // sqlite
	Redis       *RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password,omitempty"` // never logged
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

// PermissionConfig controls how the one-time permission question is answered.
//
// Mode is one of:
//   - "prompt": ask on the terminal (default)
//   - "granted" / "denied": answer without asking
type PermissionConfig struct {
	Mode string `json:"mode"`
}

// NotifierConfig controls the scheduling pipeline.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - rate_per_sec: 3
//   - send_timeout: "10s"
//   - history_size: 300
//   - persist_pending: false (only honoured by serve)
type NotifierConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	SendTimeout    string `json:"send_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	PersistPending bool   `json:"persist_pending,omitempty"`
}

type DeliveryConfig struct {
	// Log writes every notification to the log. It is forced on when no
	// other sink is usable.
	Log      bool             `json:"log"`
	Desktop  DesktopConfig    `json:"desktop"`
	Telegram TelegramDelivery `json:"telegram"`
}

type DesktopConfig struct {
	Enabled bool   `json:"enabled"`
	AppName string `json:"app_name,omitempty"`
	Icon    string `json:"icon,omitempty"`
	Expire  string `json:"expire,omitempty"`
}

type TelegramDelivery struct {
	Enabled        bool   `json:"enabled"`
	Token          string `json:"token,omitempty"` // never logged
	ChatID         int64  `json:"chat_id,omitempty"`
	ThreadID       int    `json:"thread_id,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
}

type RemindersConfig struct {
	Enabled  bool            `json:"enabled"`
	Timezone string          `json:"timezone,omitempty"`
	Entries  []ReminderEntry `json:"entries,omitempty"`
}

// ReminderEntry fires a saved template (template_id) or an inline
// title/body on a schedule.
type ReminderEntry struct {
	Name       string `json:"name"`
	Schedule   string `json:"schedule"`
	TemplateID int    `json:"template_id,omitempty"`
	Title      string `json:"title,omitempty"`
	Body       string `json:"body,omitempty"`
}

const (
	DefaultStorePath = "./spawnme_store.json"
	DefaultLogLevel  = "info"
)

// Default is the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
		// An empty logging section means "console at info".
		if !cfg.Logging.File.Enabled {
			cfg.Logging.Console = true
		}
	}
	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{Driver: "file", Path: DefaultStorePath}
	}
	if cfg.Permission.Mode == "" {
		cfg.Permission.Mode = "prompt"
	}
	if !cfg.Delivery.Desktop.Enabled && !cfg.Delivery.Telegram.Enabled {
		cfg.Delivery.Log = true
	}
}
