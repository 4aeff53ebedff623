package usecases_test

import (
	"testing"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/core/usecases"
)

func TestBroadcaster_FansOut(t *testing.T) {
	b := usecases.NewBroadcaster()
	a, cancelA := b.Subscribe(4)
	c, cancelC := b.Subscribe(4)
	defer cancelA()
	defer cancelC()

	b.Publish(entered("3"))

	for i, ch := range []<-chan domain.ConfirmedTransitionEvent{a, c} {
		select {
		case ev := <-ch:
			if ev.SiteID != "3" {
				t.Errorf("listener %d: unexpected event %+v", i, ev)
			}
		default:
			t.Errorf("listener %d: expected an event", i)
		}
	}
}

func TestBroadcaster_SlowListenerDoesNotBlock(t *testing.T) {
	b := usecases.NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(entered("1"))
	b.Publish(entered("2"))

	ev := <-ch
	if ev.SiteID != "1" {
		t.Errorf("expected the first event to be kept, got %s", ev.SiteID)
	}
	select {
	case ev := <-ch:
		t.Errorf("second event should have been dropped, got %s", ev.SiteID)
	default:
	}
}

func TestBroadcaster_CancelClosesChannel(t *testing.T) {
	b := usecases.NewBroadcaster()
	ch, cancel := b.Subscribe(1)

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	if b.Listeners() != 0 {
		t.Errorf("expected 0 listeners, got %d", b.Listeners())
	}
	b.Publish(entered("1"))
}

func TestBroadcaster_Close(t *testing.T) {
	b := usecases.NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	b.Close()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}
	late, _ := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscriptions after Close should be closed")
	}
}
