package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4, "notification")
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: "notification.delivered"})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != "notification.delivered" || e.Time.IsZero() {
				t.Fatalf("event = %+v", e)
			}
			if e.Domain() != "notification" {
				t.Fatalf("Domain = %q", e.Domain())
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}
}

func TestSubscribeFiltersDomains(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4, "notification")
	defer unsub()

	b.Publish(Event{Type: "reminder.fired"})
	b.Publish(Event{Type: "notification.registered"})
	if e := <-ch; e.Type != "notification.registered" {
		t.Fatalf("got %q, want only notification events", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %q", e.Type)
	default:
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if e := <-ch; e.Type != "a" {
		t.Fatalf("got %q", e.Type)
	}
	if b.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", b.Dropped())
	}
	unsub()
	unsub()
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: "c"})
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}

func TestDiscard(t *testing.T) {
	b := Discard()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "x"})
	select {
	case <-ch:
		t.Fatalf("discard bus delivered an event")
	default:
	}
	unsub()
}
