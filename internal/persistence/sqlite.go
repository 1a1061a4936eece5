// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver

	"github.com/tomtom215/agentstream/internal/events"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS agent_events (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_id TEXT    NOT NULL,
	type         TEXT    NOT NULL,
	ts           INTEGER NOT NULL,
	stored_at    INTEGER NOT NULL,
	payload      BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_events_execution ON agent_events(execution_id, seq);
CREATE INDEX IF NOT EXISTS idx_agent_events_stored_at ON agent_events(stored_at);
`

const selectColumns = `SELECT seq, execution_id, type, ts, stored_at, payload FROM agent_events`

// SQLiteStore is a Store on SQLite. The AUTOINCREMENT rowid is the sequence.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file at cfg.Path.
func OpenSQLite(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection serializes appends without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Backend implements Store.
func (s *SQLiteStore) Backend() string { return BackendSQLite }

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, ev events.Event) (Record, error) {
	recs, err := s.AppendBatch(ctx, []events.Event{ev})
	if err != nil {
		return Record{}, err
	}
	return recs[0], nil
}

// AppendBatch implements Store.
func (s *SQLiteStore) AppendBatch(ctx context.Context, evs []events.Event) ([]Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO agent_events (execution_id, type, ts, stored_at, payload) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	recs := make([]Record, 0, len(evs))
	for _, ev := range evs {
		rec, err := newRecord(ev)
		if err != nil {
			return nil, err
		}
		res, err := stmt.ExecContext(ctx, rec.ExecutionID, string(rec.Type), rec.Timestamp.UnixNano(), now.UnixNano(), rec.Data)
		if err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		rec.Sequence = uint64(id) //nolint:gosec // AUTOINCREMENT ids are positive
		rec.StoredAt = now
		recs = append(recs, rec)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return recs, nil
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			seq      int64
			typ      string
			ts       int64
			storedAt int64
		)
		if err := rows.Scan(&seq, &r.ExecutionID, &typ, &ts, &storedAt, &r.Data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Sequence = uint64(seq) //nolint:gosec // AUTOINCREMENT ids are positive
		r.Type = events.Type(typ)
		r.Timestamp = time.Unix(0, ts).UTC()
		r.StoredAt = time.Unix(0, storedAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Events implements Store.
func (s *SQLiteStore) Events(ctx context.Context, executionID string) ([]Record, error) {
	return s.query(ctx, selectColumns+` WHERE execution_id = ? ORDER BY seq`, executionID)
}

// EventsByType implements Store.
func (s *SQLiteStore) EventsByType(ctx context.Context, executionID string, typ events.Type) ([]Record, error) {
	return s.query(ctx, selectColumns+` WHERE execution_id = ? AND type = ? ORDER BY seq`, executionID, string(typ))
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, executionID string, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.query(ctx,
		`SELECT * FROM (`+selectColumns+` WHERE execution_id = ? ORDER BY seq DESC LIMIT ?) ORDER BY seq`,
		executionID, n)
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context, executionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agent_events WHERE execution_id = ?`, executionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) exec(ctx context.Context, q string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context, executionID string) (int, error) {
	n, err := s.exec(ctx, `DELETE FROM agent_events WHERE execution_id = ?`, executionID)
	if err != nil {
		return 0, fmt.Errorf("clear events: %w", err)
	}
	return n, nil
}

// Prune implements Store.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := s.exec(ctx, `DELETE FROM agent_events WHERE stored_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return n, nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
