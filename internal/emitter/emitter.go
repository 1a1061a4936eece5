// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/agentstream/internal/events"
	"github.com/tomtom215/agentstream/internal/logging"
	"github.com/tomtom215/agentstream/internal/metrics"
)

// Wildcard subscribes a listener to every event type.
const Wildcard events.Type = "*"

// Persister stores events. *persistence.Adapter implements it.
type Persister interface {
	AppendEvents(ctx context.Context, evs []events.Event) error
}

// Publisher sends events to the distributed bus. *bus.Publisher implements it.
type Publisher interface {
	PublishEvent(ctx context.Context, ev events.Event) error
	Close() error
}

// Config holds emitter settings.
type Config struct {
	// BufferSize is the number of recent events kept per execution.
	BufferSize int `koanf:"buffer_size" validate:"min=1"`
	// QueueSize bounds the persist and publish queues.
	QueueSize int `koanf:"queue_size" validate:"min=1"`
	// DrainTimeout is the grace period Shutdown gives queued work.
	DrainTimeout time.Duration `koanf:"drain_timeout" validate:"min=0"`
	// PersistBatchSize caps how many queued events go to the store at once.
	PersistBatchSize int `koanf:"persist_batch_size" validate:"min=1"`
	// JobTimeout bounds each store or bus call.
	JobTimeout time.Duration `koanf:"job_timeout" validate:"min=0"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:       100,
		QueueSize:        1024,
		DrainTimeout:     500 * time.Millisecond,
		PersistBatchSize: 64,
		JobTimeout:       5 * time.Second,
	}
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithStore enables persistence of emitted events.
func WithStore(p Persister) Option {
	return func(e *Emitter) { e.store = p }
}

// WithPublisher enables bus publication of emitted events.
func WithPublisher(p Publisher) Option {
	return func(e *Emitter) { e.publisher = p }
}

type emitOptions struct {
	persist   bool
	broadcast bool
}

// EmitOption adjusts a single Emit call.
type EmitOption func(*emitOptions)

// WithoutPersist skips the store for this event.
func WithoutPersist() EmitOption {
	return func(o *emitOptions) { o.persist = false }
}

// WithoutBroadcast skips the bus for this event.
func WithoutBroadcast() EmitOption {
	return func(o *emitOptions) { o.broadcast = false }
}

// Stats is a point-in-time snapshot of emitter activity.
type Stats struct {
	Emitted            int64 `json:"emitted"`
	Rejected           int64 `json:"rejected"`
	Listeners          int   `json:"listeners"`
	ListenerPanics     int64 `json:"listener_panics"`
	BufferedExecutions int   `json:"buffered_executions"`
	PersistQueueDepth  int   `json:"persist_queue_depth"`
	PublishQueueDepth  int   `json:"publish_queue_depth"`
	Persisted          int64 `json:"persisted"`
	PersistFailed      int64 `json:"persist_failed"`
	Published          int64 `json:"published"`
	PublishFailed      int64 `json:"publish_failed"`
	Dropped            int64 `json:"dropped"`
	ShuttingDown       bool  `json:"shutting_down"`
}

// Emitter fans events out to listeners, the buffer, the store and the bus.
type Emitter struct {
	cfg       Config
	store     Persister
	publisher Publisher
	logger    zerolog.Logger

	listeners *listeners
	buffers   *buffers

	persistQ *queue
	publishQ *queue

	ctx    context.Context
	cancel context.CancelFunc

	closed         atomic.Bool
	shutdownOnce   sync.Once
	shutdownErr    error
	emitted        atomic.Int64
	rejected       atomic.Int64
	listenerPanics atomic.Int64
}

// New builds an Emitter and starts its background workers. Zero Config
// fields fall back to DefaultConfig values.
func New(cfg Config, opts ...Option) *Emitter {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	if cfg.PersistBatchSize <= 0 {
		cfg.PersistBatchSize = def.PersistBatchSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}

	logger := logging.WithComponent("emitter")
	ctx, cancel := context.WithCancel(context.Background())
	e := &Emitter{
		cfg:       cfg,
		logger:    logger,
		listeners: newListeners(),
		buffers:   newBuffers(cfg.BufferSize),
		persistQ:  newQueue("persist", cfg.QueueSize, logger),
		publishQ:  newQueue("publish", cfg.QueueSize, logger),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store != nil {
		go e.persistQ.run(cfg.PersistBatchSize, e.persist)
	} else {
		e.persistQ.close()
		close(e.persistQ.done)
	}
	if e.publisher != nil {
		go e.publishQ.run(1, e.publish)
	} else {
		e.publishQ.close()
		close(e.publishQ.done)
	}
	return e
}

func (e *Emitter) persist(batch []events.Event) error {
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.JobTimeout)
	defer cancel()
	return e.store.AppendEvents(ctx, batch)
}

func (e *Emitter) publish(batch []events.Event) error {
	var errs []error
	for _, ev := range batch {
		ctx, cancel := context.WithTimeout(e.ctx, e.cfg.JobTimeout)
		errs = append(errs, e.publisher.PublishEvent(ctx, ev))
		cancel()
	}
	return errors.Join(errs...)
}

// Emit delivers ev to local listeners, records it in the execution buffer and
// queues it for persistence and bus publication. It never fails; problems
// are logged and counted.
func (e *Emitter) Emit(ev events.Event, opts ...EmitOption) {
	if e.closed.Load() {
		e.reject(ev, ErrShuttingDown, "shutdown")
		return
	}
	if err := events.Validate(ev); err != nil {
		e.reject(ev, err, "invalid")
		return
	}

	o := emitOptions{persist: true, broadcast: true}
	for _, opt := range opts {
		opt(&o)
	}

	e.emitted.Add(1)
	metrics.RecordEmit(string(ev.Kind()))

	e.dispatch(ev)
	e.buffers.append(ev)

	if o.persist && e.store != nil {
		e.persistQ.enqueue(ev)
	}
	if o.broadcast && e.publisher != nil {
		e.publishQ.enqueue(ev)
	}
}

func (e *Emitter) reject(ev events.Event, err error, reason string) {
	e.rejected.Add(1)
	metrics.RecordDrop(reason)
	le := e.logger.Warn().Err(err)
	if ev != nil {
		h := ev.Header()
		le = le.Str("type", string(h.Type)).Str("execution_id", h.ExecutionID)
	}
	le.Msg("Event not emitted")
}

func (e *Emitter) dispatch(ev events.Event) {
	for _, l := range e.listeners.matching(ev.Kind()) {
		e.invoke(l, ev)
	}
}

func (e *Emitter) invoke(l listener, ev events.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.listenerPanics.Add(1)
			metrics.ListenerPanics.Inc()
			e.logger.Error().
				Interface("panic", r).
				Uint64("listener_id", uint64(l.id)).
				Str("type", string(ev.Kind())).
				Msg("Event listener panicked")
		}
	}()
	if l.filter != nil && !l.filter(ev) {
		return
	}
	l.handler(ev)
}

// Subscribe registers handler for events of type tag, or every event when tag
// is Wildcard. Listeners for a specific tag run before wildcard listeners;
// within each group they run in registration order.
func (e *Emitter) Subscribe(tag events.Type, handler Handler, opts ...ListenerOption) ListenerID {
	return e.listeners.add(tag, handler, opts...)
}

// Unsubscribe removes a listener. It reports whether the id was registered.
func (e *Emitter) Unsubscribe(id ListenerID) bool {
	return e.listeners.remove(id)
}

// BufferedEvents returns the execution's recent events in emission order,
// optionally restricted to tags. The result is a copy.
func (e *Emitter) BufferedEvents(executionID string, tags ...events.Type) []events.Event {
	return e.buffers.get(executionID, tags)
}

// ClearBuffer evicts the execution's buffered events.
func (e *Emitter) ClearBuffer(executionID string) {
	e.buffers.clear(executionID)
}

// Shutdown stops accepting events and gives queued persistence and
// publication work the configured grace period to finish. It then cancels
// outstanding work, closes the publisher and clears buffers and listeners.
// Calling it again returns the first result.
func (e *Emitter) Shutdown(ctx context.Context) error {
	e.shutdownOnce.Do(func() {
		e.shutdownErr = e.shutdown(ctx)
	})
	return e.shutdownErr
}

func (e *Emitter) shutdown(ctx context.Context) error {
	e.closed.Store(true)
	e.persistQ.close()
	e.publishQ.close()

	var errs []error
	grace := time.NewTimer(e.cfg.DrainTimeout)
	defer grace.Stop()

	drained := true
	for _, q := range []*queue{e.persistQ, e.publishQ} {
		select {
		case <-q.done:
		case <-grace.C:
			drained = false
		case <-ctx.Done():
			drained = false
		}
		if !drained {
			break
		}
	}
	e.cancel()

	if !drained {
		e.logger.Warn().
			Int("persist_pending", e.persistQ.depth()).
			Int("publish_pending", e.publishQ.depth()).
			Dur("grace", e.cfg.DrainTimeout).
			Msg("Emitter drain incomplete, abandoning queued work")
		errs = append(errs, ErrDrainTimeout)
	}

	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}

	e.buffers.reset()
	e.listeners.reset()

	e.logger.Info().
		Int64("emitted", e.emitted.Load()).
		Int64("persisted", e.persistQ.processed.Load()).
		Int64("published", e.publishQ.processed.Load()).
		Msg("Emitter shut down")
	return errors.Join(errs...)
}

// Stats returns current counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Emitted:            e.emitted.Load(),
		Rejected:           e.rejected.Load(),
		Listeners:          e.listeners.count(),
		ListenerPanics:     e.listenerPanics.Load(),
		BufferedExecutions: e.buffers.count(),
		PersistQueueDepth:  e.persistQ.depth(),
		PublishQueueDepth:  e.publishQ.depth(),
		Persisted:          e.persistQ.processed.Load(),
		PersistFailed:      e.persistQ.failed.Load(),
		Published:          e.publishQ.processed.Load(),
		PublishFailed:      e.publishQ.failed.Load(),
		Dropped:            e.persistQ.dropped.Load() + e.publishQ.dropped.Load(),
		ShuttingDown:       e.closed.Load(),
	}
}
