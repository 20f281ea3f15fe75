// Package store provides durable EventStore backends.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/jobdone/core/factory"
	"github.com/kilianp07/jobdone/core/model"
	corestore "github.com/kilianp07/jobdone/core/store"
)

func init() {
	_ = corestore.Register("sqlite", func(conf map[string]any) (corestore.EventStore, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "jobdone.db"
		}
		return NewSQLiteStore(c.Path)
	})
}

const schema = `CREATE TABLE IF NOT EXISTS dock_events (
    id TEXT PRIMARY KEY,
    dock_set_id INTEGER NOT NULL,
    dock_no INTEGER NOT NULL,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    acked_at INTEGER
);
CREATE INDEX IF NOT EXISTS dock_events_created_at ON dock_events (created_at);`

// SQLiteStore persists dock events in a SQLite database. Timestamps are stored
// as unix nanoseconds; the implicit rowid keeps insertion order for ties.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, ev model.DockEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	var acked any
	if ev.AckedAt != nil {
		acked = ev.AckedAt.UnixNano()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dock_events (id, dock_set_id, dock_no, status, created_at, acked_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.DockSetID, ev.DockNo, string(ev.Status), ev.CreatedAt.UnixNano(), acked)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.DockEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, dock_set_id, dock_no, status, created_at, acked_at FROM dock_events WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DockEvent{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.DockEvent{}, err
	}
	return model.FromRecord(rec), nil
}

func (s *SQLiteStore) Ack(ctx context.Context, id string, at time.Time) (model.DockEvent, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dock_events SET status = ?, acked_at = ? WHERE id = ? AND status = ?`,
		string(model.StatusAcked), at.UnixNano(), id, string(model.StatusSent))
	if err != nil {
		return model.DockEvent{}, fmt.Errorf("ack event %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.DockEvent{}, err
	}
	ev, err := s.Get(ctx, id)
	if err != nil {
		return model.DockEvent{}, err
	}
	if n == 0 {
		return ev, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, ev.Status, model.StatusAcked)
	}
	return ev, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]model.DockEvent, error) {
	query := `SELECT id, dock_set_id, dock_no, status, created_at, acked_at FROM dock_events ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var recs []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return model.FromRecords(recs), nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row; timestamps are stored as Unix nanoseconds.
func scanRecord(sc scanner) (model.Record, error) {
	var (
		rec     model.Record
		created int64
		acked   sql.NullInt64
	)
	if err := sc.Scan(&rec.ID, &rec.DockSetID, &rec.DockNo, &rec.Status, &created, &acked); err != nil {
		return model.Record{}, err
	}
	c := time.Unix(0, created).UTC()
	rec.CreatedAt = &c
	if acked.Valid {
		a := time.Unix(0, acked.Int64).UTC()
		rec.AckedAt = &a
	}
	return rec, nil
}
