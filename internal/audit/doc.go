// Package audit moves security events from the engine's hot path to a
// caller-supplied sink without blocking it.
//
// # Components
//
//   - [Event]: one security-relevant record (type, actor, session, outcome).
//   - [Sink]: consumer interface; ChannelSink, JSONWriterSink, NoOpSink ship here.
//   - [Dispatcher]: buffered relay with a single delivery goroutine and
//     either drop-if-full or block-if-full back-pressure.
//
// # Architecture boundaries
//
// Which operations produce events, and with what payload, is the root
// package's call; this package only buffers and delivers.
//
// # What this package must NOT do
//
//   - Inspect or filter events.
//   - Import authcore or any sibling internal package.
//   - Do network I/O of its own; a Sink may, on its own time.
package audit
