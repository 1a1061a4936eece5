// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package emitter

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tomtom215/agentstream/internal/events"
	"github.com/tomtom215/agentstream/internal/metrics"
)

// queue is a bounded FIFO drained by a single worker goroutine.
type queue struct {
	name   string
	jobs   chan events.Event
	done   chan struct{}
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func newQueue(name string, size int, logger zerolog.Logger) *queue {
	return &queue{
		name:   name,
		jobs:   make(chan events.Event, size),
		done:   make(chan struct{}),
		logger: logger.With().Str("queue", name).Logger(),
	}
}

// enqueue never blocks. It reports false when the job was dropped.
func (q *queue) enqueue(ev events.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.drop(ev, "closed")
		return false
	}
	select {
	case q.jobs <- ev:
		metrics.EmitterQueueDepth.WithLabelValues(q.name).Set(float64(len(q.jobs)))
		return true
	default:
		q.drop(ev, q.name+"_queue_full")
		return false
	}
}

func (q *queue) drop(ev events.Event, reason string) {
	q.dropped.Add(1)
	metrics.RecordDrop(reason)
	h := ev.Header()
	q.logger.Warn().
		Str("reason", reason).
		Str("type", string(h.Type)).
		Str("execution_id", h.ExecutionID).
		Msg("Dropping event job")
}

// close stops intake. The worker drains what is already queued and exits.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
}

func (q *queue) depth() int { return len(q.jobs) }

// run drains the queue, handing up to maxBatch consecutive jobs to handle at
// a time. A panic in handle is logged and the worker keeps going.
func (q *queue) run(maxBatch int, handle func([]events.Event) error) {
	defer close(q.done)
	if maxBatch < 1 {
		maxBatch = 1
	}

	for ev := range q.jobs {
		batch := make([]events.Event, 1, maxBatch)
		batch[0] = ev
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-q.jobs:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}

		q.process(batch, handle)
		metrics.EmitterQueueDepth.WithLabelValues(q.name).Set(float64(len(q.jobs)))
	}
}

func (q *queue) process(batch []events.Event, handle func([]events.Event) error) {
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(int64(len(batch)))
			q.logger.Error().Interface("panic", r).Int("batch", len(batch)).Msg("Event job panicked")
		}
	}()

	if err := handle(batch); err != nil {
		q.failed.Add(int64(len(batch)))
		h := batch[0].Header()
		q.logger.Warn().Err(err).
			Int("batch", len(batch)).
			Str("execution_id", h.ExecutionID).
			Str("type", string(h.Type)).
			Msg("Event job failed")
		return
	}
	q.processed.Add(int64(len(batch)))
}
