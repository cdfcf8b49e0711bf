package history

import (
	"context"
	"database/sql"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		queue           TEXT NOT NULL,
		job_name        TEXT NOT NULL DEFAULT '',
		outcome         TEXT NOT NULL,
		reason          TEXT NOT NULL DEFAULT '',
		message         TEXT NOT NULL DEFAULT '',
		started_at      TEXT NOT NULL,
		finished_at     TEXT NOT NULL,
		next_run_after  INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_queue_finished ON runs(queue, finished_at)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
