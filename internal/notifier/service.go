package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"spawnme/internal/delivery"
	"spawnme/internal/eventbus"
	"spawnme/internal/permission"
	"spawnme/internal/runtime/supervisor"
	"spawnme/internal/storage"
	logx "spawnme/pkg/logx"
)

type job struct {
	id string
}

type entry struct {
	rec   pendingRecord
	timer *time.Timer
	// fired is set once the timer callback has claimed the entry.
	fired bool
}

// Service implements the scheduling pipeline:
// permission + one-shot timer + queue + worker pool + rate limit.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	auth  Authorizer
	sink  delivery.Sink
	bus   eventbus.Bus
	store storage.Store

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *supervisor.Supervisor
	stopDone chan struct{} // non-nil while stopping

	pending map[string]*entry
	// kept holds records abandoned while stopping. They stay in the journal
	// until Stop completes.
	kept map[string]pendingRecord
	// inflight counts registered notifications not yet handed to the sink.
	inflight int
	idle     chan struct{}

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, auth Authorizer, sink delivery.Sink, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Discard()
	}
	s := &Service{
		log:     log,
		auth:    auth,
		sink:    sink,
		bus:     bus,
		store:   store,
		pending: map[string]*entry{},
	}
	s.applyLocked(cfg)
	return s
}

// Apply updates rate limit, send timeout and history size live.
// Worker and queue sizes take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}
	if s.store == nil {
		cfg.PersistPending = false
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepting
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Start is idempotent.
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = supervisor.New(ctx,
		supervisor.WithLogger(s.log),
		// a failing worker must not take the scheduler down with it
		supervisor.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	workers := s.cfg.Workers
	persist := s.cfg.PersistPending
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			// Clean exits happen on shutdown (queue close).
			if c.Err() != nil || s.stopping() {
				return nil
			}
			return errors.New("notifier worker exited unexpectedly")
		})
	}

	if persist {
		s.restorePending(ctx)
	}
	s.log.Debug("notifier started", logx.Int("workers", workers))
}

func (s *Service) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopDone != nil
}

// Stop stops intake, disarms timers that have not fired and drains the queue
// best-effort until ctx is done. Disarmed notifications survive in the pending
// journal when it is enabled and are lost otherwise.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	disarmed := 0
	for _, e := range s.pending {
		if !e.fired && e.timer != nil && e.timer.Stop() {
			disarmed++
			s.doneInflightLocked()
		}
	}
	persist := s.cfg.PersistPending
	s.mu.Unlock()

	if disarmed > 0 {
		if persist {
			s.log.Info("pending notifications kept for next start", logx.Int("count", disarmed))
		} else {
			s.log.Warn("pending notifications dropped on stop", logx.Int("count", disarmed))
		}
	}

	go func() {
		defer close(done)
		// Wait for in-flight enqueues to finish, then close the queue so workers can drain.
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())
		for j := range q {
			s.abandon(j.id)
		}

		s.mu.Lock()
		s.queue = nil
		s.sup = nil
		s.stopDone = nil
		s.pending = map[string]*entry{}
		s.kept = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Force-stop workers; whatever is still queued is abandoned.
		sup.Cancel()
	}
}

// Schedule requests permission and registers a one-shot delivery of req
// after req.Delay.
//
// A denied permission returns ErrPermissionDenied. Any other failure to
// register is a *SchedulingError. The returned Handle always carries a fresh ID.
func (s *Service) Schedule(ctx context.Context, req Request) (Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	h := Handle{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Body:        req.Body,
		RequestedAt: time.Now(),
	}
	if req.Delay < 0 {
		return h, &SchedulingError{Op: "validate", Err: fmt.Errorf("negative delay %s", req.Delay)}
	}
	if !s.Running() {
		return h, &SchedulingError{Op: "register", Err: ErrStopped}
	}
	if s.auth == nil {
		return h, &SchedulingError{Op: "authorize", Err: errors.New("no authorizer configured")}
	}
	s.publish(EventRequested, NotificationEvent{ID: h.ID, Title: h.Title, At: h.RequestedAt})

	d, err := s.auth.RequestPermission(ctx)
	if err != nil {
		return h, &SchedulingError{Op: "authorize", Err: err}
	}
	if d != permission.Granted {
		h.State = StateRejected
		s.publish(EventRejected, NotificationEvent{ID: h.ID, Title: h.Title, At: time.Now()})
		s.log.Info("notification rejected; permission denied", logx.String("id", h.ID))
		return h, ErrPermissionDenied
	}

	h.DueAt = time.Now().Add(req.Delay)
	rec := pendingRecord{ID: h.ID, Title: h.Title, Body: h.Body, DueAt: h.DueAt}
	if err := s.register(rec, req.Delay); err != nil {
		return h, err
	}
	h.State = StateRegistered
	s.log.Info("notification registered",
		logx.String("id", h.ID),
		logx.String("title", h.Title),
		logx.Duration("delay", req.Delay),
		logx.String("due", humanize.Time(h.DueAt)),
	)
	return h, nil
}

func (s *Service) register(rec pendingRecord, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting {
		return &SchedulingError{Op: "register", Err: ErrStopped}
	}
	s.pending[rec.ID] = &entry{rec: rec}
	if s.cfg.PersistPending {
		if err := s.writeJournalLocked(); err != nil {
			delete(s.pending, rec.ID)
			return &SchedulingError{Op: "journal", Err: err}
		}
	}
	// Published before arming so it always precedes delivered/failed.
	s.publish(EventRegistered, NotificationEvent{ID: rec.ID, Title: rec.Title, DueAt: rec.DueAt, At: time.Now()})
	s.armLocked(rec.ID, delay)
	return nil
}

// armLocked starts the timer of a pending entry. The callback blocks on s.mu,
// so the timer is always stored before it can run.
func (s *Service) armLocked(id string, delay time.Duration) {
	s.addInflightLocked()
	s.pending[id].timer = time.AfterFunc(delay, func() { s.fire(id) })
}

func (s *Service) fire(id string) {
	s.mu.Lock()
	e, ok := s.pending[id]
	if !ok || e.fired {
		s.mu.Unlock()
		return
	}
	e.fired = true
	if !s.accepting || s.queue == nil {
		// Lost the race with Stop; the journal still holds it.
		s.doneInflightLocked()
		s.mu.Unlock()
		return
	}
	q := s.queue
	sup := s.sup
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- job{id: id}:
	case <-sup.Context().Done():
		s.abandon(id)
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, j)
		}
	}
}

func (s *Service) deliver(ctx context.Context, j job) {
	s.mu.Lock()
	e, ok := s.pending[j.id]
	lim := s.limiter
	sink := s.sink
	timeout := s.cfg.SendTimeout
	s.mu.Unlock()
	if !ok {
		return
	}

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			s.abandon(j.id)
			return
		}
	}

	var err error
	sinkName := ""
	if sink == nil {
		err = errors.New("no delivery sink configured")
	} else {
		sinkName = sink.Name()
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err = sink.Deliver(callCtx, delivery.Notification{
			ID:    e.rec.ID,
			Title: e.rec.Title,
			Body:  e.rec.Body,
			DueAt: e.rec.DueAt,
		})
		cancel()
	}
	s.finish(e.rec, sinkName, err)
}

// finish records the hand-off of a notification to the sink.
func (s *Service) finish(rec pendingRecord, sinkName string, err error) {
	s.mu.Lock()
	if _, ok := s.pending[rec.ID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, rec.ID)
	if s.cfg.PersistPending {
		if jerr := s.writeJournalLocked(); jerr != nil {
			s.log.Warn("pending journal not updated", logx.String("id", rec.ID), logx.Err(jerr))
		}
	}
	histMax := s.cfg.HistorySize
	s.mu.Unlock()

	now := time.Now()
	item := HistoryItem{ID: rec.ID, Title: rec.Title, At: now, Sink: sinkName}
	ev := NotificationEvent{ID: rec.ID, Title: rec.Title, DueAt: rec.DueAt, At: now}
	if err != nil {
		item.Err = err.Error()
		ev.Error = err.Error()
		s.publish(EventFailed, ev)
		s.log.Warn("notification delivery failed", logx.String("id", rec.ID), logx.String("sink", sinkName), logx.Err(err))
	} else {
		s.publish(EventDelivered, ev)
		s.log.Debug("notification delivered", logx.String("id", rec.ID), logx.String("sink", sinkName), logx.Duration("late", now.Sub(rec.DueAt)))
	}
	s.appendHistory(item, histMax)

	// Wait returns only once the outcome is visible in history and on the bus.
	s.mu.Lock()
	s.doneInflightLocked()
	s.mu.Unlock()
}

// abandon gives up on a fired notification during shutdown. Its journal entry
// survives later journal writes so the next start delivers it.
func (s *Service) abandon(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[id]
	if !ok {
		return
	}
	delete(s.pending, id)
	if s.cfg.PersistPending {
		if s.kept == nil {
			s.kept = map[string]pendingRecord{}
		}
		s.kept[id] = e.rec
	}
	s.doneInflightLocked()
}

func (s *Service) addInflightLocked() {
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
}

func (s *Service) doneInflightLocked() {
	if s.inflight == 0 {
		return
	}
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
}

// Wait blocks until every registered notification has been handed to the sink
// (or dropped by Stop), or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.inflight == 0 {
			s.mu.Unlock()
			return nil
		}
		ch := s.idle
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending returns the registered notifications not yet handed off, soonest first.
func (s *Service) Pending() []Handle {
	s.mu.Lock()
	out := make([]Handle, 0, len(s.pending))
	for _, e := range s.pending {
		out = append(out, Handle{
			ID:    e.rec.ID,
			Title: e.rec.Title,
			Body:  e.rec.Body,
			DueAt: e.rec.DueAt,
			State: StateRegistered,
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(item HistoryItem, max int) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if max > 0 && len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, ev NotificationEvent) {
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func (s *Service) writeJournalLocked() error {
	recs := make([]pendingRecord, 0, len(s.pending)+len(s.kept))
	for _, e := range s.pending {
		recs = append(recs, e.rec)
	}
	for _, r := range s.kept {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].DueAt.Before(recs[j].DueAt) })
	b, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.store.Set(ctx, PendingKey, b)
}

// restorePending re-arms notifications left in the journal by a previous run.
// Overdue ones fire immediately.
func (s *Service) restorePending(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	b, ok, err := s.store.Get(rctx, PendingKey)
	cancel()
	if err != nil {
		s.log.Warn("pending journal unreadable", logx.Err(err))
		return
	}
	if !ok {
		return
	}
	var recs []pendingRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		s.log.Warn("pending journal malformed; ignoring", logx.Err(err))
		return
	}

	now := time.Now()
	restored, overdue := 0, 0
	s.mu.Lock()
	for _, r := range recs {
		if r.ID == "" || s.pending[r.ID] != nil {
			continue
		}
		delay := r.DueAt.Sub(now)
		if delay < 0 {
			delay = 0
			overdue++
		}
		s.pending[r.ID] = &entry{rec: r}
		s.armLocked(r.ID, delay)
		restored++
	}
	s.mu.Unlock()

	if restored > 0 {
		s.log.Info("pending notifications restored", logx.Int("count", restored), logx.Int("overdue", overdue))
	}
}
