// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/agentstream/internal/events"
)

// MemoryStore is a process-local Store, used for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
	seq     uint64
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

// Backend implements Store.
func (s *MemoryStore) Backend() string { return BackendMemory }

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, ev events.Event) (Record, error) {
	recs, err := s.AppendBatch(ctx, []events.Event{ev})
	if err != nil {
		return Record{}, err
	}
	return recs[0], nil
}

// AppendBatch implements Store.
func (s *MemoryStore) AppendBatch(_ context.Context, evs []events.Event) ([]Record, error) {
	recs := make([]Record, 0, len(evs))
	for _, ev := range evs {
		rec, err := newRecord(ev)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	now := time.Now().UTC()
	for i := range recs {
		s.seq++
		recs[i].Sequence = s.seq
		recs[i].StoredAt = now
		s.records[recs[i].ExecutionID] = append(s.records[recs[i].ExecutionID], recs[i])
	}
	return recs, nil
}

func (s *MemoryStore) filter(executionID string, keep func(Record) bool) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []Record
	for _, r := range s.records[executionID] {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Events implements Store.
func (s *MemoryStore) Events(_ context.Context, executionID string) ([]Record, error) {
	return s.filter(executionID, func(Record) bool { return true })
}

// EventsByType implements Store.
func (s *MemoryStore) EventsByType(_ context.Context, executionID string, typ events.Type) ([]Record, error) {
	return s.filter(executionID, func(r Record) bool { return r.Type == typ })
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context, executionID string, n int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if n <= 0 {
		return nil, nil
	}
	all := s.records[executionID]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]Record, len(all))
	copy(out, all)
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, executionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.records[executionID]), nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, executionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := len(s.records[executionID])
	delete(s.records, executionID)
	return n, nil
}

// Prune implements Store.
func (s *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	removed := 0
	for id, recs := range s.records {
		kept := recs[:0]
		for _, r := range recs {
			if r.StoredAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(s.records, id)
			continue
		}
		s.records[id] = kept
	}
	return removed, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = make(map[string][]Record)
	return nil
}
