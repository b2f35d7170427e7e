package app

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/google/wire"

	"spawnme/internal/config"
	"spawnme/internal/delivery"
	"spawnme/internal/eventbus"
	"spawnme/internal/notifier"
	"spawnme/internal/permission"
	"spawnme/internal/reminder"
	"spawnme/internal/storage"
	"spawnme/internal/templates"
	logx "spawnme/pkg/logx"
)

// IO is where the permission prompt reads answers and writes questions.
type IO struct {
	In  io.Reader
	Out io.Writer
}

func StdIO() IO { return IO{In: os.Stdin, Out: os.Stderr} }

// ProviderSet builds an *App from a config path, a Mode and an IO.
var ProviderSet = wire.NewSet(
	config.NewConfigManager,
	ProvideConfig,
	ProvideLogService,
	ProvideLogger,
	eventbus.New,
	ProvideStore,
	ProvideRepository,
	ProvideGate,
	ProvidePolicy,
	wire.Bind(new(notifier.Authorizer), new(*Policy)),
	ProvideSinks,
	wire.Bind(new(delivery.Sink), new(*delivery.Fanout)),
	ProvideNotifier,
	wire.Bind(new(reminder.Scheduler), new(*notifier.Service)),
	wire.Bind(new(reminder.TemplateSource), new(*templates.Repository)),
	ProvideReminders,
	New,
)

// ProvideConfig loads and validates the config file. A missing file yields defaults.
func ProvideConfig(m *config.ConfigManager) (*config.Config, error) {
	cfg, err := m.Load()
	if err != nil {
		return nil, err
	}
	if err := Validate(context.Background(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ProvideLogService(cfg *config.Config) (*logx.Service, func()) {
	svc, _ := logx.New(mapLogConfig(cfg))
	return svc, func() { _ = svc.Close() }
}

func ProvideLogger(svc *logx.Service) logx.Logger { return svc.Logger() }

// ProvideStore opens the configured store. driver "none" falls back to a
// process-local store so commands still work, without persistence.
func ProvideStore(cfg *config.Config, log logx.Logger) (storage.Store, func(), error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	slog := log.With(logx.Component("storage"))
	st, err := storage.Open(sc, slog)
	if errors.Is(err, storage.ErrDisabled) {
		slog.Warn("storage disabled; templates and permission will not persist")
		st, err = storage.NewMemory(), nil
	}
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("storage opened", logx.String("driver", sc.Driver))
	return st, func() {
		if err := st.Close(); err != nil {
			slog.Warn("storage close failed", logx.Err(err))
		}
	}, nil
}

func ProvideRepository(st storage.Store, log logx.Logger) *templates.Repository {
	return templates.NewRepository(st, log.With(logx.Component("templates")))
}

func ProvideGate(st storage.Store, stdio IO, log logx.Logger) *permission.Gate {
	return permission.NewGate(st, permission.NewTerminal(stdio.In, stdio.Out), log.With(logx.Component("permission")))
}

func ProvidePolicy(cfg *config.Config, gate *permission.Gate) (*Policy, error) {
	mode, err := permissionMode(cfg)
	if err != nil {
		return nil, err
	}
	return NewPolicy(mode, gate), nil
}

func ProvideSinks(cfg *config.Config, log logx.Logger) (*delivery.Fanout, func(), error) {
	dc, err := mapDeliveryConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	f := delivery.New(dc, log.With(logx.Component("delivery")))
	return f, func() { _ = f.Close() }, nil
}

func ProvideNotifier(
	cfg *config.Config,
	mode Mode,
	auth notifier.Authorizer,
	sink delivery.Sink,
	log logx.Logger,
	bus eventbus.Bus,
	st storage.Store,
) (*notifier.Service, error) {
	nc, err := mapNotifierConfig(cfg, mode)
	if err != nil {
		return nil, err
	}
	return notifier.New(nc, auth, sink, log.With(logx.Component("notifier")), bus, st), nil
}

func ProvideReminders(cfg *config.Config, sched reminder.Scheduler, src reminder.TemplateSource, log logx.Logger) *reminder.Service {
	return reminder.New(mapReminderConfig(cfg), sched, src, log.With(logx.Component("reminders")))
}
