// Package reminder fires saved templates on recurring schedules.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"spawnme/internal/notifier"
	"spawnme/internal/templates"
	logx "spawnme/pkg/logx"
)

type registered struct {
	entry   Entry
	spec    Spec
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	loc   *time.Location
	sched Scheduler
	src   TemplateSource

	// cmu guards runCtx separately; jobs read it while Apply waits for them under mu.
	cmu    sync.RWMutex
	runCtx context.Context

	c    *cron.Cron
	regs []registered
}

func New(cfg Config, sched Scheduler, src TemplateSource, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, sched: sched, src: src, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Validate checks every entry and the timezone without touching the running schedule.
func Validate(cfg Config) error {
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("reminders.timezone: invalid %q: %w", tz, err)
		}
	}
	seen := map[string]bool{}
	for i, e := range cfg.Entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return fmt.Errorf("reminders.entries[%d]: name required", i)
		}
		if seen[name] {
			return fmt.Errorf("reminders.entries[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if _, err := ParseSpec(e.Schedule); err != nil {
			return fmt.Errorf("reminders.entries[%d] (%s): %w", i, name, err)
		}
		if e.TemplateID == 0 && e.Title == "" && e.Body == "" {
			return fmt.Errorf("reminders.entries[%d] (%s): template_id or title/body required", i, name)
		}
	}
	return nil
}

// Start registers the configured entries and starts triggering. It is a
// no-op when disabled or already started.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.cmu.Lock()
	s.runCtx = ctx
	s.cmu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.startLocked()
}

func (s *Service) startLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(cronParser), cron.WithLocation(s.loc))
	s.regs = s.regs[:0]
	for _, e := range s.cfg.Entries {
		if err := s.addLocked(e); err != nil {
			s.log.Error("reminder register failed", logx.String("name", e.Name), logx.String("schedule", e.Schedule), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("reminders started", logx.String("tz", s.loc.String()), logx.Int("entries", len(s.regs)))
}

func (s *Service) addLocked(e Entry) error {
	sp, err := ParseSpec(e.Schedule)
	if err != nil {
		return err
	}
	sched, err := sp.Schedule()
	if err != nil {
		return err
	}
	entry := e
	id := s.c.Schedule(sched, cron.FuncJob(func() { s.fire(entry) }))
	s.regs = append(s.regs, registered{entry: e, spec: sp, entryID: id})

	next := sched.Next(time.Now().In(s.loc))
	s.log.Debug("reminder registered",
		logx.String("name", e.Name),
		logx.String("spec", sp.String()),
		logx.Time("next", next),
	)
	return nil
}

// Stop stops triggering. Notifications already handed to the scheduler are unaffected.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.regs = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("reminders stopped")
}

// Apply swaps in cfg, re-registering every entry. An invalid cfg is rejected
// and the previous schedule keeps running.
func (s *Service) Apply(cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
		s.regs = nil
	}
	if ctx := s.runContext(); cfg.Enabled && ctx != nil && ctx.Err() == nil {
		s.startLocked()
	}
	return nil
}

// Entries returns the registered reminders with their next run time.
func (s *Service) Entries() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	out := make([]Info, 0, len(s.regs))
	for _, r := range s.regs {
		ce := s.c.Entry(r.entryID)
		out = append(out, Info{Name: r.entry.Name, Spec: r.spec.String(), Next: ce.Next, Prev: ce.Prev})
	}
	return out
}

func (s *Service) fire(e Entry) {
	ctx := s.runContext()
	if ctx == nil {
		ctx = context.Background()
	}

	req, ok := s.resolve(ctx, e)
	if !ok {
		return
	}
	h, err := s.sched.Schedule(ctx, req)
	switch {
	case errors.Is(err, notifier.ErrPermissionDenied):
		s.log.Info("reminder skipped; permission denied", logx.String("name", e.Name))
	case err != nil:
		s.log.Warn("reminder schedule failed", logx.String("name", e.Name), logx.Err(err))
	default:
		s.log.Debug("reminder fired", logx.String("name", e.Name), logx.String("id", h.ID))
	}
}

// resolve turns an entry into a request. A template is looked up fresh on
// every firing so edits made by the CLI are picked up.
func (s *Service) resolve(ctx context.Context, e Entry) (notifier.Request, bool) {
	if e.TemplateID == 0 {
		return notifier.Request{Title: e.Title, Body: e.Body}, true
	}
	var ts []templates.Template
	if s.src != nil {
		ts = s.src.LoadOrEmpty(ctx)
	}
	t, ok := templates.Find(ts, e.TemplateID)
	if !ok {
		s.log.Warn("reminder template not found; skipped", logx.String("name", e.Name), logx.Int("template_id", e.TemplateID))
		return notifier.Request{}, false
	}
	return notifier.Request{Title: t.Title, Body: t.Body}, true
}

func (s *Service) runContext() context.Context {
	s.cmu.RLock()
	defer s.cmu.RUnlock()
	return s.runCtx
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
