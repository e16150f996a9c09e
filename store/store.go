// Copyright (c) jupacheco1407.
// Licensed under the MIT License.

// Package store keeps a history of completed max-force measurements.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jupacheco1407/datacollector/sampling"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// Record is a stored measurement.
type Record struct {
	RunID    uuid.UUID
	Source   string
	Maxima   []float64
	Steps    int
	Total    int
	Stopped  bool
	Error    string
	Started  time.Time
	Finished time.Time
}

// SQLiteStore is a measurement history backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// ErrNotFound is returned when no measurement has the requested run ID.
var ErrNotFound = errors.New("measurement not found")

// FromCompletion builds a record from a worker's completion.
func FromCompletion(source string, c sampling.Completion) Record {
	r := Record{
		RunID:    c.RunID,
		Source:   source,
		Maxima:   c.Maxima,
		Steps:    c.Steps,
		Total:    c.Total,
		Stopped:  c.Stopped,
		Started:  c.Started,
		Finished: c.Finished,
	}
	if c.Err != nil {
		r.Error = c.Err.Error()
	}
	return r
}

// Max returns the largest value across all channels.
func (r Record) Max() float64 {
	var m float64
	for _, v := range r.Maxima {
		m = max(m, v)
	}
	return m
}

// Open opens or creates the history database at path.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; an in-memory database also only exists
	// on the connection that created it.
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New initializes the required schema in the given database, which must use
// a SQLite driver, and returns a store on it.
func New(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		PRAGMA busy_timeout = 5000;
		CREATE TABLE IF NOT EXISTS measurements (
			run_id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			maxima TEXT NOT NULL,
			steps INTEGER NOT NULL,
			total INTEGER NOT NULL,
			stopped INTEGER NOT NULL,
			error TEXT NOT NULL,
			started_ns INTEGER NOT NULL,
			finished_ns INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS measurements_finished
			ON measurements (finished_ns DESC);`,
	)
	return err
}

// Save stores a measurement. Saving a run ID twice replaces the earlier
// record.
func (s *SQLiteStore) Save(ctx context.Context, r Record) error {
	maxima, err := json.Marshal(r.Maxima)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO measurements
			(run_id, source, maxima, steps, total, stopped, error, started_ns, finished_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID.String(),
		r.Source,
		string(maxima),
		r.Steps,
		r.Total,
		r.Stopped,
		r.Error,
		unixNano(r.Started),
		unixNano(r.Finished),
	)
	if err != nil {
		return fmt.Errorf("save measurement %s: %w", r.RunID, err)
	}
	return nil
}

// Get returns the measurement with the given run ID.
func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, source, maxima, steps, total, stopped, error, started_ns, finished_ns
		FROM measurements
		WHERE run_id = ?`,
		id.String(),
	)

	r, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

// Recent returns up to limit measurements, most recently finished first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source, maxima, steps, total, stopped, error, started_ns, finished_ns
		FROM measurements
		ORDER BY finished_ns DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Record, error) {
	var (
		r        Record
		id       string
		maxima   string
		started  int64
		finished int64
	)
	if err := row.Scan(
		&id,
		&r.Source,
		&maxima,
		&r.Steps,
		&r.Total,
		&r.Stopped,
		&r.Error,
		&started,
		&finished,
	); err != nil {
		return Record{}, err
	}

	var err error
	if r.RunID, err = uuid.Parse(id); err != nil {
		return Record{}, fmt.Errorf("corrupt run ID %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(maxima), &r.Maxima); err != nil {
		return Record{}, fmt.Errorf("corrupt maxima for %s: %w", id, err)
	}
	r.Started = fromUnixNano(started)
	r.Finished = fromUnixNano(finished)
	return r, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
