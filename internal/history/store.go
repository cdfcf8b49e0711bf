package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/openjobspec/ojs-job-chief/internal/core"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultLimit caps ListByQueue when no limit is given.
const DefaultLimit = 50

// Store keeps finished run records in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an in-memory database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db, logger: logger.With("component", "history")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunFinished stores rec. It lets the store observe run cycles directly.
func (s *Store) RunFinished(ctx context.Context, rec core.RunRecord) error {
	return s.Record(ctx, rec)
}

// Record inserts rec, replacing any row with the same ID.
func (s *Store) Record(ctx context.Context, rec core.RunRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", rec.ID)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, queue, job_name, outcome, reason, message, started_at, finished_at, next_run_after)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Queue, rec.JobName, rec.Outcome, rec.Reason, rec.Message,
		rec.StartedAt.UTC().Format(timeLayout), rec.FinishedAt.UTC().Format(timeLayout),
		rec.NextRunAfter.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

// ListByQueue returns the most recent runs of queue, newest first.
func (s *Store) ListByQueue(ctx context.Context, queue string, limit int) ([]core.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s.logger.Debug("sql", "op", "select", "table", "runs", "queue", queue)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, queue, job_name, outcome, reason, message, started_at, finished_at, next_run_after
		 FROM runs WHERE queue = ? ORDER BY finished_at DESC, id DESC LIMIT ?`, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs of %s: %w", queue, err)
	}
	defer rows.Close()

	var out []core.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountByOutcome returns how many runs of queue ended with each outcome.
func (s *Store) CountByOutcome(ctx context.Context, queue string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM runs WHERE queue = ? GROUP BY outcome`, queue)
	if err != nil {
		return nil, fmt.Errorf("count runs of %s: %w", queue, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// Prune deletes runs that finished before cutoff and returns how many.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE finished_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(rows *sql.Rows) (core.RunRecord, error) {
	var rec core.RunRecord
	var startedAt, finishedAt string
	var nextMs int64
	if err := rows.Scan(&rec.ID, &rec.Queue, &rec.JobName, &rec.Outcome, &rec.Reason, &rec.Message,
		&startedAt, &finishedAt, &nextMs); err != nil {
		return rec, err
	}
	var err error
	if rec.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return rec, fmt.Errorf("parse started_at: %w", err)
	}
	if rec.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
		return rec, fmt.Errorf("parse finished_at: %w", err)
	}
	rec.NextRunAfter = time.Duration(nextMs) * time.Millisecond
	return rec, nil
}

// Pruner deletes runs older than MaxAge each time Clean is called.
type Pruner struct {
	Store  *Store
	MaxAge time.Duration
	now    func() time.Time
}

// Clean prunes expired runs and logs the outcome.
func (p *Pruner) Clean(ctx context.Context) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	n, err := p.Store.Prune(ctx, now().Add(-p.MaxAge))
	if err != nil {
		p.Store.logger.Error("failed to prune run history", "error", err)
		return
	}
	if n > 0 {
		p.Store.logger.Info("pruned run history", "deleted", n)
	}
}
