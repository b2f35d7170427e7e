package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spawnme/internal/config"
	"spawnme/internal/delivery"
	"spawnme/internal/eventbus"
	"spawnme/internal/notifier"
	"spawnme/internal/permission"
	"spawnme/internal/reminder"
	"spawnme/internal/runtime/supervisor"
	"spawnme/internal/templates"
	logx "spawnme/pkg/logx"
	"spawnme/pkg/systemd"
)

// Mode selects which parts of the app run.
type Mode int

const (
	// ModeCLI runs a single command: notifier only, no reminders, no config watch.
	ModeCLI Mode = iota
	// ModeServe runs until stopped with reminders, hot reload and sd_notify.
	ModeServe
)

func (m Mode) String() string {
	if m == ModeServe {
		return "serve"
	}
	return "cli"
}

type StopReason string

const (
	StopCommandDone StopReason = "command_done"
	StopSignal      StopReason = "signal"
	StopFatalError  StopReason = "fatal_error"
)

type App struct {
	mode Mode

	cfgm *config.ConfigManager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	repo   *templates.Repository
	policy *Policy
	gate   *permission.Gate
	sinks  *delivery.Fanout
	notif  *notifier.Service
	rem    *reminder.Service

	sup *supervisor.Supervisor
}

func New(
	mode Mode,
	cfgm *config.ConfigManager,
	logs *logx.Service,
	log logx.Logger,
	bus eventbus.Bus,
	repo *templates.Repository,
	policy *Policy,
	gate *permission.Gate,
	sinks *delivery.Fanout,
	notif *notifier.Service,
	rem *reminder.Service,
) *App {
	a := &App{
		mode:   mode,
		cfgm:   cfgm,
		log:    log.With(logx.Component("app")),
		logs:   logs,
		bus:    bus,
		repo:   repo,
		policy: policy,
		gate:   gate,
		sinks:  sinks,
		notif:  notif,
		rem:    rem,
	}
	if cfgm.Missing() {
		a.log.Debug("config file not found; using defaults", logx.String("path", cfgm.Path()))
	}
	return a
}

func (a *App) Mode() Mode                        { return a.mode }
func (a *App) Log() logx.Logger                  { return a.log }
func (a *App) Config() *config.Config            { return a.cfgm.Get() }
func (a *App) Permission() *permission.Gate      { return a.gate }
func (a *App) Policy() *Policy                   { return a.policy }
func (a *App) Notifier() *notifier.Service       { return a.notif }
func (a *App) Reminders() *reminder.Service      { return a.rem }
func (a *App) Repository() *templates.Repository { return a.repo }

// Templates opens a template session over the configured store.
func (a *App) Templates(ctx context.Context) *templates.Library {
	return templates.OpenLibrary(ctx, a.repo, a.log.With(logx.Component("templates")))
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.Component("supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	// The notifier drains on Stop; it must not be torn down by the signal
	// that triggered the stop.
	a.notif.Start(context.WithoutCancel(ctx))

	if a.mode != ModeServe {
		a.log.Debug("app started", logx.String("mode", a.mode.String()))
		return nil
	}

	// Start records the run context even when disabled so a reload can enable it.
	a.rem.Start(a.sup.Context())

	// Pending count for `systemctl status`.
	events, unsub := a.bus.Subscribe(128, "notification")
	a.sup.Go0("eventbus.status", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				_, _ = systemd.Status(fmt.Sprintf("%d pending, %d events dropped", len(a.notif.Pending()), a.bus.Dropped()))
			}
		}
	})

	a.cfgm.SetLogger(a.log.With(logx.Component("config")))
	a.cfgm.SetValidator(Validate)

	sub := a.cfgm.Subscribe()
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c)
	})

	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started",
		logx.String("mode", a.mode.String()),
		logx.String("sink", a.sinks.Name()),
		logx.Int("reminders", len(a.rem.Entries())),
	)
	return nil
}

// applyConfig applies a validated config live. Storage and delivery changes
// need a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	for _, s := range sections {
		switch s {
		case "storage", "delivery":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if mode, err := permissionMode(newCfg); err == nil && mode != a.policy.Mode() {
		a.policy.SetMode(mode)
		a.log.Info("permission mode changed", logx.String("mode", mode))
	}

	if ncfg, err := mapNotifierConfig(newCfg, a.mode); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if err := a.rem.Apply(mapReminderConfig(newCfg)); err != nil {
		a.log.Warn("invalid reminders config; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	if a.mode == ModeServe {
		a.log.Info("stopping", logx.String("reason", string(reason)))
		_, _ = systemd.Stopping()
	}

	// Cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "reminders", 2*time.Second, func(c context.Context) error { a.rem.Stop(c); return nil })
	a.step(ctx, "notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Debug("stopped")
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop. fn must honor its context.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

	stepCtx := ctx
	if limit > 0 {
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < limit {
				limit = max(rem, 0)
			}
		}
		if limit > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			took := time.Since(start)
			if err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
			} else {
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
			}
		}()
	}
}
