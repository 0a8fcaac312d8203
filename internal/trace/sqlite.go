package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/cadence/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "trace"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.TraceRun) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Name, run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.TraceRun) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID)
	var endedAt *string
	if run.EndedAt != nil {
		v := run.EndedAt.UTC().Format(time.RFC3339Nano)
		endedAt = &v
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, frames = ?, simulated = ? WHERE id = ?`,
		endedAt, run.Frames, run.Simulated, run.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

const runColumns = `r.id, r.name, r.started_at, r.ended_at, r.frames, r.simulated,
	(SELECT COUNT(*) FROM events e WHERE e.run_id = r.id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.TraceRun, error) {
	var run model.TraceRun
	var startedAt string
	var endedAt *string
	if err := row.Scan(&run.ID, &run.Name, &startedAt, &endedAt, &run.Frames, &run.Simulated, &run.Events); err != nil {
		return nil, err
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if endedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *endedAt)
		run.EndedAt = &t
	}
	return &run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.TraceRun, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.TraceRun, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r ORDER BY r.started_at DESC, r.id LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.TraceRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// --- Events ---

// AppendEvents writes events in one transaction.
func (s *SQLiteStore) AppendEvents(ctx context.Context, events []model.TraceEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "insert", "table", "events", "count", len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, frame, elapsed, kind, task_id, task_name, from_state, to_state, keys, message, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		keys := ev.Keys
		if keys == nil {
			keys = []string{}
		}
		keysJSON, err := json.Marshal(keys)
		if err != nil {
			return fmt.Errorf("marshal keys: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			ev.RunID, ev.Seq, ev.Frame, ev.Elapsed, string(ev.Kind),
			ev.TaskID, ev.TaskName, ev.From, ev.To, string(keysJSON), ev.Message, ev.Error,
		); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]*model.TraceEvent, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "run_id", runID, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereClauses := []string{"run_id = ?"}
	args := []any{runID}
	if opts.Kind != "" {
		whereClauses = append(whereClauses, "kind = ?")
		args = append(args, opts.Kind)
	}
	whereSQL := " WHERE " + strings.Join(whereClauses, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, seq, frame, elapsed, kind, task_id, task_name, from_state, to_state, keys, message, error
		 FROM events`+whereSQL+` ORDER BY seq LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*model.TraceEvent
	for rows.Next() {
		var ev model.TraceEvent
		var kind, keysJSON string
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Seq, &ev.Frame, &ev.Elapsed, &kind,
			&ev.TaskID, &ev.TaskName, &ev.From, &ev.To, &keysJSON, &ev.Message, &ev.Error); err != nil {
			return nil, 0, err
		}
		ev.Kind = model.EventKind(kind)
		if err := json.Unmarshal([]byte(keysJSON), &ev.Keys); err != nil {
			return nil, 0, fmt.Errorf("unmarshal keys: %w", err)
		}
		if len(ev.Keys) == 0 {
			ev.Keys = nil
		}
		events = append(events, &ev)
	}
	return events, total, rows.Err()
}
