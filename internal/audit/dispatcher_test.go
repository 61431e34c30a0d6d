package audit

import (
	"context"
	"testing"
	"time"
)

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	defer d.Close()

	ctx := context.Background()
	for _, typ := range []string{"login", "refresh", "logout"} {
		d.Emit(ctx, Event{EventType: typ, UserID: "u-1", Timestamp: time.Now()})
	}

	for _, want := range []string{"login", "refresh", "logout"} {
		select {
		case got := <-sink.Events():
			if got.EventType != want {
				t.Fatalf("event type: got %q want %q", got.EventType, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	blocked := make(chan struct{})
	sink := sinkFunc(func(context.Context, Event) { <-blocked })
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		d.Emit(ctx, Event{EventType: "login"})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a full buffer")
	}
	close(blocked)
	d.Close()
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

	d.Emit(context.Background(), Event{EventType: "login"})
	d.Close()

	select {
	case <-sink.Events():
	case <-time.After(time.Second):
		t.Fatal("event lost on close")
	}

	// Emitting after close is a silent no-op.
	d.Emit(context.Background(), Event{EventType: "late"})
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	// All methods are nil-safe.
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher dropped count must be zero")
	}
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }
