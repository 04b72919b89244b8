package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: FragmentEmitted, Data: "x"})

	for i, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != FragmentEmitted || e.Time.IsZero() {
				t.Fatalf("sub %d got %+v", i, e)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub %d: no event", i)
		}
	}
}

func TestSubscribeFilter(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4, PublishFailed)
	defer unsub()

	b.Publish(Event{Type: FragmentEmitted})
	b.Publish(Event{Type: PublishFailed})

	e := <-ch
	if e.Type != PublishFailed {
		t.Fatalf("got %s, want %s", e.Type, PublishFailed)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: StateChanged})
	}
	if got := b.Dropped(); got != 2 {
		t.Fatalf("Dropped = %d, want 2", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open")
	}
	b.Publish(Event{Type: LoopStopped})
}
