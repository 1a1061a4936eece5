// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package emitter

import (
	"slices"
	"sync"

	"github.com/tomtom215/agentstream/internal/events"
	"github.com/tomtom215/agentstream/internal/metrics"
)

// ring holds the most recent events of one execution, oldest first.
type ring struct {
	items []events.Event
	start int
	n     int
}

func newRing(size int) *ring {
	return &ring{items: make([]events.Event, size)}
}

func (r *ring) push(ev events.Event) {
	size := len(r.items)
	if r.n < size {
		r.items[(r.start+r.n)%size] = ev
		r.n++
		return
	}
	r.items[r.start] = ev
	r.start = (r.start + 1) % size
}

func (r *ring) snapshot(tags []events.Type) []events.Event {
	out := make([]events.Event, 0, r.n)
	for i := range r.n {
		ev := r.items[(r.start+i)%len(r.items)]
		if len(tags) > 0 && !slices.Contains(tags, ev.Kind()) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// buffers maps execution ids to their rings. Rings are created on first use.
type buffers struct {
	mu    sync.RWMutex
	size  int
	rings map[string]*ring
}

func newBuffers(size int) *buffers {
	return &buffers{size: size, rings: make(map[string]*ring)}
}

func (b *buffers) append(ev events.Event) {
	id := ev.Header().ExecutionID

	b.mu.Lock()
	r, ok := b.rings[id]
	if !ok {
		r = newRing(b.size)
		b.rings[id] = r
	}
	r.push(ev)
	n := len(b.rings)
	b.mu.Unlock()

	if !ok {
		metrics.BufferedExecutions.Set(float64(n))
	}
}

func (b *buffers) get(executionID string, tags []events.Type) []events.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rings[executionID]
	if !ok {
		return []events.Event{}
	}
	return r.snapshot(tags)
}

func (b *buffers) clear(executionID string) {
	b.mu.Lock()
	delete(b.rings, executionID)
	n := len(b.rings)
	b.mu.Unlock()
	metrics.BufferedExecutions.Set(float64(n))
}

func (b *buffers) reset() {
	b.mu.Lock()
	clear(b.rings)
	b.mu.Unlock()
	metrics.BufferedExecutions.Set(0)
}

func (b *buffers) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rings)
}
