package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// Sink consumes events delivered by the Dispatcher. Emit must not
// panic; slow sinks only cost buffer space, never block the engine.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards everything.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a consumer goroutine over a buffered
// channel. Emit blocks when the channel is full until the context ends.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events is the consumer side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink appends newline-delimited JSON to a writer. Writes are
// serialized; write and marshal errors are dropped on the floor since
// there is nobody to report them to.
type JSONWriterSink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{out: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.out == nil {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	_, _ = s.out.Write(line)
	s.mu.Unlock()
}
