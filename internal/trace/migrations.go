package trace

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the trace tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at   TEXT,
		frames     INTEGER NOT NULL DEFAULT 0,
		simulated  REAL NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq       INTEGER NOT NULL,
		frame     INTEGER NOT NULL,
		elapsed   REAL NOT NULL,
		kind      TEXT NOT NULL,
		task_id   TEXT NOT NULL DEFAULT '',
		task_name TEXT NOT NULL DEFAULT '',
		from_state TEXT NOT NULL DEFAULT '',
		to_state  TEXT NOT NULL DEFAULT '',
		keys      TEXT NOT NULL DEFAULT '[]',
		message   TEXT NOT NULL DEFAULT '',
		error     TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_run_seq ON events(run_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_events_task_id ON events(task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
