// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/agentstream/internal/events"
	"github.com/tomtom215/agentstream/internal/logging"
	"github.com/tomtom215/agentstream/internal/metrics"
)

// Adapter gives a Store best-effort semantics. Writes return their error so
// callers can log it; reads log failures and return empty or zero results.
type Adapter struct {
	store Store
	log   zerolog.Logger
}

// NewAdapter wraps store.
func NewAdapter(store Store) *Adapter {
	return &Adapter{
		store: store,
		log:   logging.WithComponent("persistence").With().Str("backend", store.Backend()).Logger(),
	}
}

// Store returns the wrapped store.
func (a *Adapter) Store() Store { return a.store }

func (a *Adapter) observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(a.store.Backend(), op, time.Since(start), err)
}

// AppendEvent appends one event.
func (a *Adapter) AppendEvent(ctx context.Context, ev events.Event) error {
	start := time.Now()
	_, err := a.store.Append(ctx, ev)
	a.observe("append", start, err)
	return err
}

// AppendEvents appends evs in one batch.
func (a *Adapter) AppendEvents(ctx context.Context, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	start := time.Now()
	_, err := a.store.AppendBatch(ctx, evs)
	a.observe("append_batch", start, err)
	return err
}

func (a *Adapter) decode(executionID string, recs []Record) []events.Event {
	out := make([]events.Event, 0, len(recs))
	for _, r := range recs {
		ev, err := r.Event()
		if err != nil {
			a.log.Warn().Err(err).
				Str("execution_id", executionID).
				Uint64("sequence", r.Sequence).
				Msg("Skipping undecodable stored event")
			continue
		}
		out = append(out, ev)
	}
	return out
}

// GetExecutionEvents returns the execution's history in order.
func (a *Adapter) GetExecutionEvents(ctx context.Context, executionID string) []events.Event {
	start := time.Now()
	recs, err := a.store.Events(ctx, executionID)
	a.observe("events", start, err)
	if err != nil {
		a.log.Error().Err(err).Str("execution_id", executionID).Msg("Failed to read execution events")
		return []events.Event{}
	}
	return a.decode(executionID, recs)
}

// GetExecutionEventsByType returns the execution's events of one type.
func (a *Adapter) GetExecutionEventsByType(ctx context.Context, executionID string, typ events.Type) []events.Event {
	start := time.Now()
	recs, err := a.store.EventsByType(ctx, executionID, typ)
	a.observe("events_by_type", start, err)
	if err != nil {
		a.log.Error().Err(err).Str("execution_id", executionID).Str("type", string(typ)).Msg("Failed to read execution events by type")
		return []events.Event{}
	}
	return a.decode(executionID, recs)
}

// CountExecutionEvents returns the number of persisted events.
func (a *Adapter) CountExecutionEvents(ctx context.Context, executionID string) int {
	start := time.Now()
	n, err := a.store.Count(ctx, executionID)
	a.observe("count", start, err)
	if err != nil {
		a.log.Error().Err(err).Str("execution_id", executionID).Msg("Failed to count execution events")
		return 0
	}
	return n
}

// GetLatestEvents returns up to n most recent events, oldest first.
func (a *Adapter) GetLatestEvents(ctx context.Context, executionID string, n int) []events.Event {
	start := time.Now()
	recs, err := a.store.Latest(ctx, executionID, n)
	a.observe("latest", start, err)
	if err != nil {
		a.log.Error().Err(err).Str("execution_id", executionID).Msg("Failed to read latest events")
		return []events.Event{}
	}
	return a.decode(executionID, recs)
}

// ClearExecutionEvents deletes the execution's history and returns the number removed.
func (a *Adapter) ClearExecutionEvents(ctx context.Context, executionID string) int {
	start := time.Now()
	n, err := a.store.Clear(ctx, executionID)
	a.observe("clear", start, err)
	if err != nil {
		a.log.Error().Err(err).Str("execution_id", executionID).Msg("Failed to clear execution events")
		return 0
	}
	a.log.Info().Str("execution_id", executionID).Int("removed", n).Msg("Cleared execution events")
	return n
}

// GetEventStatistics aggregates the execution's persisted history.
func (a *Adapter) GetEventStatistics(ctx context.Context, executionID string) Statistics {
	return ComputeStatistics(executionID, a.GetExecutionEvents(ctx, executionID))
}

// Prune deletes records stored before cutoff and returns the number removed.
func (a *Adapter) Prune(ctx context.Context, cutoff time.Time) int {
	start := time.Now()
	n, err := a.store.Prune(ctx, cutoff)
	a.observe("prune", start, err)
	if err != nil {
		a.log.Error().Err(err).Time("cutoff", cutoff).Msg("Failed to prune events")
		return 0
	}
	return n
}

// Ping reports whether the store is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// Close closes the store.
func (a *Adapter) Close() error {
	return a.store.Close()
}
