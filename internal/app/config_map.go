package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spawnme/internal/config"
	"spawnme/internal/delivery"
	"spawnme/internal/notifier"
	"spawnme/internal/permission"
	"spawnme/internal/reminder"
	"spawnme/internal/storage"
	logx "spawnme/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{Driver: "file", Path: config.DefaultStorePath}, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "file":
		if path == "" {
			path = config.DefaultStorePath
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "memory", "mem", "none":
		return storage.Config{Driver: driver}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.DurationValue("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "redis":
		if sc.Redis == nil || strings.TrimSpace(sc.Redis.Addr) == "" {
			return storage.Config{}, fmt.Errorf("storage.redis.addr is required when storage.driver=redis")
		}
		timeout, err := config.DurationValue("storage.redis.timeout", sc.Redis.Timeout, 3*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "redis", Redis: storage.RedisConfig{
			Addr:      strings.TrimSpace(sc.Redis.Addr),
			Password:  sc.Redis.Password,
			DB:        sc.Redis.DB,
			KeyPrefix: sc.Redis.KeyPrefix,
			Timeout:   timeout,
		}}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapNotifierConfig maps the notifier section. The pending journal only
// makes sense for a long-running process, so it is forced off outside serve.
func mapNotifierConfig(cfg *config.Config, mode Mode) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{}, nil
	}
	if nc.Workers < 0 || nc.QueueSize < 0 || nc.RatePerSec < 0 || nc.HistorySize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: workers, queue_size, rate_per_sec and history_size must be >= 0")
	}
	timeout, err := config.DurationValue("notifier.send_timeout", nc.SendTimeout, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Workers:        nc.Workers,
		QueueSize:      nc.QueueSize,
		RatePerSec:     nc.RatePerSec,
		SendTimeout:    timeout,
		HistorySize:    nc.HistorySize,
		PersistPending: nc.PersistPending && mode == ModeServe,
	}, nil
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	d := cfg.Delivery
	expire, err := config.DurationValue("delivery.desktop.expire", d.Desktop.Expire, 0)
	if err != nil {
		return delivery.Config{}, err
	}
	if d.Telegram.Enabled {
		if strings.TrimSpace(d.Telegram.Token) == "" {
			return delivery.Config{}, fmt.Errorf("delivery.telegram.token is required when telegram is enabled")
		}
		if d.Telegram.ChatID == 0 {
			return delivery.Config{}, fmt.Errorf("delivery.telegram.chat_id is required when telegram is enabled")
		}
	}
	return delivery.Config{
		Log: d.Log,
		Desktop: delivery.DesktopConfig{
			Enabled: d.Desktop.Enabled,
			AppName: d.Desktop.AppName,
			Icon:    d.Desktop.Icon,
			Expire:  expire,
		},
		Telegram: delivery.TelegramConfig{
			Enabled:        d.Telegram.Enabled,
			Token:          strings.TrimSpace(d.Telegram.Token),
			ChatID:         d.Telegram.ChatID,
			ThreadID:       d.Telegram.ThreadID,
			DisablePreview: d.Telegram.DisablePreview,
		},
	}, nil
}

func mapReminderConfig(cfg *config.Config) reminder.Config {
	rc := cfg.Reminders
	entries := make([]reminder.Entry, 0, len(rc.Entries))
	for _, e := range rc.Entries {
		entries = append(entries, reminder.Entry{
			Name:       strings.TrimSpace(e.Name),
			Schedule:   e.Schedule,
			TemplateID: e.TemplateID,
			Title:      e.Title,
			Body:       e.Body,
		})
	}
	return reminder.Config{
		Enabled:  rc.Enabled,
		Timezone: strings.TrimSpace(rc.Timezone),
		Entries:  entries,
	}
}

// permissionMode normalizes permission.mode to "prompt", "granted" or "denied".
func permissionMode(cfg *config.Config) (string, error) {
	m := strings.ToLower(strings.TrimSpace(cfg.Permission.Mode))
	if m == "" || m == "prompt" || m == "ask" {
		return "prompt", nil
	}
	d, err := permission.ParseDecision(m)
	if err != nil {
		return "", fmt.Errorf("permission.mode: %w", err)
	}
	return string(d), nil
}

// Validate checks every section that is applied at runtime. It is the
// config manager's reload validator and runs once at startup.
func Validate(_ context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := permissionMode(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg, ModeServe); err != nil {
		return err
	}
	if _, err := mapDeliveryConfig(cfg); err != nil {
		return err
	}
	return reminder.Validate(mapReminderConfig(cfg))
}
