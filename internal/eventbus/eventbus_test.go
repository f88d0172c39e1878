package eventbus

import (
	"testing"
	"time"
)

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()

	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	dropped, unsubDropped := b.Subscribe(4, TypeReminderDropped)
	defer unsubDropped()

	b.Publish(Event{Type: TypeReminderDelivered, Data: int64(1)})
	b.Publish(Event{Type: TypeReminderDropped, Data: int64(2)})

	recv := func(ch <-chan Event) Event {
		select {
		case e := <-ch:
			return e
		case <-time.After(time.Second):
			t.Fatal("no event received")
			return Event{}
		}
	}

	if e := recv(all); e.Type != TypeReminderDelivered {
		t.Fatalf("all-subscriber first event = %s", e.Type)
	}
	if e := recv(all); e.Type != TypeReminderDropped {
		t.Fatalf("all-subscriber second event = %s", e.Type)
	}
	if e := recv(dropped); e.Type != TypeReminderDropped || e.Data != int64(2) {
		t.Fatalf("filtered subscriber got %+v", e)
	}
	select {
	case e := <-dropped:
		t.Fatalf("filtered subscriber got extra event %+v", e)
	default:
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: TypeReminderDelivered, Data: int64(i)})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if len(ch) != 1 {
		t.Fatalf("buffered events = %d, want 1 (rest dropped)", len(ch))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent
	if _, ok := <-ch; ok {
		t.Fatal("unsubscribe did not close the channel")
	}
	b.Publish(Event{Type: TypeReminderDelivered}) // must not panic
}
