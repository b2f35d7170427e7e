// Package eventbus carries notification lifecycle events from the notifier to
// whoever watches them (the serve loop, tests).
package eventbus

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event types are "<domain>.<what>", e.g. "notification.delivered".
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Domain returns the part of Type before the first dot.
func (e Event) Domain() string {
	d, _, _ := strings.Cut(e.Type, ".")
	return d
}

// Bus delivers without blocking the publisher. A subscriber whose buffer is
// full misses the event; Dropped counts those misses.
type Bus interface {
	Publish(e Event)
	// Subscribe receives events of the given domains, or all events when none
	// are given. unsubscribe closes ch and may be called more than once.
	Subscribe(buffer int, domains ...string) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

func New() Bus { return &memBus{} }

// Discard returns a bus that drops everything.
func Discard() Bus { return discard{} }

type discard struct{}

func (discard) Publish(Event)   {}
func (discard) Dropped() uint64 { return 0 }
func (discard) Subscribe(int, ...string) (<-chan Event, func()) {
	ch := make(chan Event)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

type subscriber struct {
	ch      chan Event
	domains []string
}

func (s *subscriber) wants(domain string) bool {
	return len(s.domains) == 0 || slices.Contains(s.domains, domain)
}

type memBus struct {
	// Publish sends under the read lock and unsubscribe closes under the
	// write lock, so a send never meets a closed channel.
	mu      sync.RWMutex
	subs    []*subscriber
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	domain := e.Domain()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(domain) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }

func (b *memBus) Subscribe(buffer int, domains ...string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, max(buffer, 1)), domains: domains}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			b.subs = slices.DeleteFunc(b.subs, func(x *subscriber) bool { return x == s })
			close(s.ch)
			b.mu.Unlock()
		})
	}
}
