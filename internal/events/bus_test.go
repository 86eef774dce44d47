package events

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	bus := NewBus(100, logger)
	go bus.Start()
	defer bus.Stop()

	ch := bus.Subscribe(100)
	defer bus.Unsubscribe(ch)

	evt := Event{
		Type:      EventBind,
		Timestamp: time.Now(),
		Session:   "eth0/169.254.7.7",
		ACD: &ACDData{
			Ifindex: 2,
		},
	}

	bus.Publish(evt)

	select {
	case received := <-ch:
		if received.Type != EventBind {
			t.Errorf("received event type = %q, want %q", received.Type, EventBind)
		}
		if received.ACD == nil || received.ACD.Ifindex != 2 {
			t.Error("acd data not preserved")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBusMultipleSubscribers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	bus := NewBus(100, logger)
	go bus.Start()
	defer bus.Stop()

	ch1 := bus.Subscribe(100)
	ch2 := bus.Subscribe(100)
	defer bus.Unsubscribe(ch1)
	defer bus.Unsubscribe(ch2)

	bus.Publish(Event{Type: EventConflict, Timestamp: time.Now()})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != EventConflict {
				t.Errorf("event type = %q, want %q", e.Type, EventConflict)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event on subscriber")
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	bus := NewBus(100, logger)
	go bus.Start()
	defer bus.Stop()

	ch := bus.Subscribe(100)
	bus.Unsubscribe(ch)

	// Publish after unsubscribe — should not block or panic
	bus.Publish(Event{Type: EventStop, Timestamp: time.Now()})

	// Give a moment for the event to propagate
	time.Sleep(50 * time.Millisecond)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("should not receive events after unsubscribe")
		}
	default:
		// Expected — channel closed or empty
	}
}

func TestBusNonBlocking(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	// Tiny buffer
	bus := NewBus(1, logger)
	go bus.Start()
	defer bus.Stop()

	// Publish many events — should not block even with tiny buffer
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: EventBind, Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
		// Good — publishing didn't block
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked — event bus should be non-blocking")
	}
}
