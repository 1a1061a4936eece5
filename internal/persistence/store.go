// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

// Package persistence stores the durable history of agent execution events.
//
// Every backend is an append-only log keyed by (execution id, sequence): an
// append never reads the existing history, so concurrent writers for the same
// execution cannot overwrite each other. Sequences are allocated by the store
// and are strictly increasing within a process; they may have gaps.
//
// Store is the backend contract. Adapter wraps a Store with the best-effort
// semantics the rest of the service expects: reads log failures and return
// empty results instead of errors.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/agentstream/internal/events"
)

// Backend names accepted by Open.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Record is one persisted event.
type Record struct {
	ExecutionID string
	Sequence    uint64
	Type        events.Type
	Timestamp   time.Time
	StoredAt    time.Time
	Data        []byte
}

// Event decodes the stored payload.
func (r Record) Event() (events.Event, error) {
	return events.Decode(r.Data)
}

// Store is an append-only event log.
type Store interface {
	// Append stores ev and returns its record.
	Append(ctx context.Context, ev events.Event) (Record, error)
	// AppendBatch stores evs atomically in order.
	AppendBatch(ctx context.Context, evs []events.Event) ([]Record, error)
	// Events returns an execution's records in sequence order.
	Events(ctx context.Context, executionID string) ([]Record, error)
	// EventsByType returns an execution's records of one type in sequence order.
	EventsByType(ctx context.Context, executionID string, typ events.Type) ([]Record, error)
	// Latest returns up to n most recent records in sequence order.
	Latest(ctx context.Context, executionID string, n int) ([]Record, error)
	// Count returns the number of records for an execution.
	Count(ctx context.Context, executionID string) (int, error)
	// Clear deletes an execution's records and returns how many were removed.
	Clear(ctx context.Context, executionID string) (int, error)
	// Prune deletes records stored before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	// Ping checks that the store is usable.
	Ping(ctx context.Context) error
	// Backend returns the backend name.
	Backend() string
	Close() error
}

// Config selects and tunes a backend.
type Config struct {
	Backend string
	// Path is the badger directory or sqlite file. Empty runs badger in memory.
	Path string
	// Retention sets a TTL on badger entries and the age used by the pruner. Zero keeps everything.
	Retention time.Duration
	// SyncWrites makes badger fsync every write.
	SyncWrites bool
	// BusyTimeout is the sqlite busy timeout.
	BusyTimeout time.Duration
}

// Open creates the store selected by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendBadger, "":
		return OpenBadger(cfg)
	case BackendSQLite:
		return OpenSQLite(ctx, cfg)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}

// newRecord encodes ev for storage. seq and storedAt are filled by the backend.
func newRecord(ev events.Event) (Record, error) {
	data, err := events.Encode(ev)
	if err != nil {
		return Record{}, err
	}
	h := ev.Header()
	return Record{
		ExecutionID: h.ExecutionID,
		Type:        ev.Kind(),
		Timestamp:   h.Timestamp,
		Data:        data,
	}, nil
}
