// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

/*
Package emitter is the single coordination point for agent event traffic in a
process.

An Emitter is constructed once by the application and passed to whatever code
produces events. Emit never returns an error and never blocks on I/O:

  - local listeners run synchronously, tag listeners before wildcard ones,
    each isolated from the others' panics
  - the event is appended to a bounded per-execution ring buffer
  - persistence and bus publication are queued to two background workers

Each worker drains its own bounded queue in order, so events emitted
sequentially by one goroutine reach the store and the bus in emission order.
When a queue is full the job is dropped and counted rather than blocking the
caller.

Usage:

	em := emitter.New(emitter.DefaultConfig(),
	    emitter.WithStore(adapter),
	    emitter.WithPublisher(publisher),
	)
	id := em.Subscribe(emitter.Wildcard, func(ev events.Event) {
	    fmt.Println(events.Describe(ev))
	})
	em.AgentStarted(events.Ref{ExecutionID: "exec-1"}, "story-head", "Story Head", "content")
	...
	em.Unsubscribe(id)
	_ = em.Shutdown(ctx)
*/
package emitter
