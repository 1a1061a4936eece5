// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package persistence

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/agentstream/internal/events"
	"github.com/tomtom215/agentstream/internal/logging"
)

// Key layout: "evt/" | uint16 id length | execution id | uint64 sequence (big endian).
// The length prefix keeps one execution's prefix from matching another id
// that merely starts with it.
const (
	prefixEvents = "evt/"
	sequenceKey  = "seq/events"
	seqBandwidth = 1000
)

// badgerValue is the stored value of an event key.
type badgerValue struct {
	Type      events.Type     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	StoredAt  time.Time       `json:"stored_at"`
	Event     json.RawMessage `json:"event"`
}

// BadgerStore is a Store on BadgerDB.
type BadgerStore struct {
	db        *badger.DB
	seq       *badger.Sequence
	retention time.Duration

	mu     sync.RWMutex
	closed bool
}

// badgerLogger routes badger's internal logging to zerolog at reduced verbosity.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.log.Error().Msgf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.log.Warn().Msgf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.log.Debug().Msgf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.log.Trace().Msgf(f, v...) }

// OpenBadger opens (or creates) a badger store at cfg.Path, or an in-memory
// store when the path is empty.
func OpenBadger(cfg Config) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithLogger(badgerLogger{log: logging.WithComponent("badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("get event sequence: %w", err)
	}

	return &BadgerStore{db: db, seq: seq, retention: cfg.Retention}, nil
}

func executionPrefix(executionID string) ([]byte, error) {
	if executionID == "" || len(executionID) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExecutionID, executionID)
	}
	p := make([]byte, 0, len(prefixEvents)+2+len(executionID)+8)
	p = append(p, prefixEvents...)
	p = binary.BigEndian.AppendUint16(p, uint16(len(executionID)))
	p = append(p, executionID...)
	return p, nil
}

func eventKey(prefix []byte, seq uint64) []byte {
	k := make([]byte, len(prefix), len(prefix)+8)
	copy(k, prefix)
	return binary.BigEndian.AppendUint64(k, seq)
}

// splitKey recovers the execution id and sequence from an event key.
func splitKey(key []byte) (string, uint64, bool) {
	rest := key[len(prefixEvents):]
	if len(rest) < 2 {
		return "", 0, false
	}
	n := int(binary.BigEndian.Uint16(rest))
	rest = rest[2:]
	if len(rest) != n+8 {
		return "", 0, false
	}
	return string(rest[:n]), binary.BigEndian.Uint64(rest[n:]), true
}

func (s *BadgerStore) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Backend implements Store.
func (s *BadgerStore) Backend() string { return BackendBadger }

// Append implements Store.
func (s *BadgerStore) Append(ctx context.Context, ev events.Event) (Record, error) {
	recs, err := s.AppendBatch(ctx, []events.Event{ev})
	if err != nil {
		return Record{}, err
	}
	return recs[0], nil
}

// AppendBatch implements Store. All events are written in one transaction.
func (s *BadgerStore) AppendBatch(_ context.Context, evs []events.Event) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	recs := make([]Record, 0, len(evs))
	now := time.Now().UTC()

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, ev := range evs {
			rec, err := newRecord(ev)
			if err != nil {
				return err
			}
			prefix, err := executionPrefix(rec.ExecutionID)
			if err != nil {
				return err
			}
			n, err := s.seq.Next()
			if err != nil {
				return fmt.Errorf("next sequence: %w", err)
			}
			rec.Sequence = n + 1
			rec.StoredAt = now

			val, err := json.Marshal(badgerValue{Type: rec.Type, Timestamp: rec.Timestamp, StoredAt: now, Event: rec.Data})
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			e := badger.NewEntry(eventKey(prefix, rec.Sequence), val)
			if s.retention > 0 {
				e = e.WithTTL(s.retention)
			}
			if err := txn.SetEntry(e); err != nil {
				return fmt.Errorf("set entry: %w", err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func decodeBadgerItem(item *badger.Item) (Record, error) {
	execID, seq, ok := splitKey(item.Key())
	if !ok {
		return Record{}, fmt.Errorf("malformed event key %x", item.Key())
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return Record{}, fmt.Errorf("read record %s/%d: %w", execID, seq, err)
	}
	var v badgerValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return Record{}, fmt.Errorf("decode record %s/%d: %w", execID, seq, err)
	}
	return Record{
		ExecutionID: execID,
		Sequence:    seq,
		Type:        v.Type,
		Timestamp:   v.Timestamp,
		StoredAt:    v.StoredAt,
		Data:        v.Event,
	}, nil
}

// scan iterates an execution's records in sequence order until fn returns false.
func (s *BadgerStore) scan(executionID string, reverse bool, fn func(Record) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	prefix, err := executionPrefix(executionID)
	if err != nil {
		return err
	}

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		start := prefix
		if reverse {
			start = append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		}
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			rec, err := decodeBadgerItem(it.Item())
			if err != nil {
				return err
			}
			if !fn(rec) {
				return nil
			}
		}
		return nil
	})
}

// Events implements Store.
func (s *BadgerStore) Events(_ context.Context, executionID string) ([]Record, error) {
	var out []Record
	err := s.scan(executionID, false, func(r Record) bool {
		out = append(out, r)
		return true
	})
	return out, err
}

// EventsByType implements Store.
func (s *BadgerStore) EventsByType(_ context.Context, executionID string, typ events.Type) ([]Record, error) {
	var out []Record
	err := s.scan(executionID, false, func(r Record) bool {
		if r.Type == typ {
			out = append(out, r)
		}
		return true
	})
	return out, err
}

// Latest implements Store.
func (s *BadgerStore) Latest(_ context.Context, executionID string, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]Record, 0, n)
	err := s.scan(executionID, true, func(r Record) bool {
		out = append(out, r)
		return len(out) < n
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count implements Store.
func (s *BadgerStore) Count(_ context.Context, executionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	prefix, err := executionPrefix(executionID)
	if err != nil {
		return 0, err
	}

	count := 0
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// deleteKeys removes keys in a write batch.
func (s *BadgerStore) deleteKeys(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("delete key: %w", err)
		}
	}
	return wb.Flush()
}

// collectKeys returns the keys under prefix for which keep returns true.
func (s *BadgerStore) collectKeys(prefix []byte, match func(*badger.Item) (bool, error)) ([][]byte, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			ok, err := match(item)
			if err != nil {
				return err
			}
			if ok {
				keys = append(keys, item.KeyCopy(nil))
			}
		}
		return nil
	})
	return keys, err
}

// Clear implements Store.
func (s *BadgerStore) Clear(_ context.Context, executionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	prefix, err := executionPrefix(executionID)
	if err != nil {
		return 0, err
	}

	keys, err := s.collectKeys(prefix, func(*badger.Item) (bool, error) { return true, nil })
	if err != nil {
		return 0, err
	}
	if err := s.deleteKeys(keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Prune implements Store.
func (s *BadgerStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	keys, err := s.collectKeys([]byte(prefixEvents), func(item *badger.Item) (bool, error) {
		rec, err := decodeBadgerItem(item)
		if err != nil {
			// Unreadable records are pruned too.
			return true, nil //nolint:nilerr // corrupt entries are removed
		}
		return rec.StoredAt.Before(cutoff), nil
	})
	if err != nil {
		return 0, err
	}
	if err := s.deleteKeys(keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Ping implements Store.
func (s *BadgerStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close releases the sequence lease and closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close badger: %w", err))
	}
	return errors.Join(errs...)
}
