package config

import (
	"reflect"
	"sort"
	"strings"

	logx "spawnme/pkg/logx"
)

// SummarizeConfigChange returns the sorted list of changed sections and
// structured attrs safe for logging (tokens and passwords are reduced to
// "set" flags).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	oS, nS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if !reflect.DeepEqual(oS, nS) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Bool("storage.redis_set", nS.Redis != nil),
		)
	}

	if oldCfg.Permission != newCfg.Permission {
		changed = append(changed, "permission")
		attrs = append(attrs, logx.String("permission.mode", newCfg.Permission.Mode))
	}

	oN, nN := derefNotifier(oldCfg.Notifier), derefNotifier(newCfg.Notifier)
	if oN != nN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.workers", nN.Workers),
			logx.Int("notifier.queue_size", nN.QueueSize),
			logx.Int("notifier.rate_per_sec", nN.RatePerSec),
			logx.String("notifier.send_timeout", strings.TrimSpace(nN.SendTimeout)),
			logx.Bool("notifier.persist_pending", nN.PersistPending),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Bool("delivery.log", newCfg.Delivery.Log),
			logx.Bool("delivery.desktop", newCfg.Delivery.Desktop.Enabled),
			logx.Bool("delivery.telegram", newCfg.Delivery.Telegram.Enabled),
			logx.Bool("delivery.telegram_token_set", strings.TrimSpace(newCfg.Delivery.Telegram.Token) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.Bool("reminders.enabled", newCfg.Reminders.Enabled),
			logx.String("reminders.timezone", strings.TrimSpace(newCfg.Reminders.Timezone)),
			logx.Int("reminders.entries", len(newCfg.Reminders.Entries)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func derefNotifier(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{}
	}
	return *n
}
