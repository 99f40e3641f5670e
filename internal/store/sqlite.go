package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/autoreply/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	counts      TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL REFERENCES runs(id),
	thread_key      TEXT NOT NULL,
	sender          TEXT NOT NULL,
	subject         TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	outcome         TEXT NOT NULL,
	trials          INTEGER NOT NULL DEFAULT 0,
	dispatch_failed INTEGER NOT NULL DEFAULT 0,
	processed_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_messages_run_id ON messages(run_id);
CREATE INDEX IF NOT EXISTS idx_messages_thread_key ON messages(thread_key);
CREATE INDEX IF NOT EXISTS idx_messages_processed_at ON messages(processed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, counts model.RunCounts) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, counts = ?, finished_at = ? WHERE id = ?`,
		string(status), string(countsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, counts, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, counts, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordMessage(ctx context.Context, rec *model.MessageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, run_id, thread_key, sender, subject, category, outcome, trials, dispatch_failed, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.ThreadKey, rec.Sender, rec.Subject,
		string(rec.Category), string(rec.Outcome), rec.Trials, rec.DispatchFailed, rec.ProcessedAt,
	)
	return eris.Wrap(err, "sqlite: insert message")
}

func (s *SQLiteStore) ListMessages(ctx context.Context, runID string) ([]model.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, thread_key, sender, subject, category, outcome, trials, dispatch_failed, processed_at
		 FROM messages WHERE run_id = ? ORDER BY processed_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list messages")
	}
	defer rows.Close()

	var recs []model.MessageRecord
	for rows.Next() {
		var rec model.MessageRecord
		var category, outcome string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.ThreadKey, &rec.Sender, &rec.Subject,
			&category, &outcome, &rec.Trials, &rec.DispatchFailed, &rec.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan message")
		}
		rec.Category = model.Category(category)
		rec.Outcome = model.Outcome(outcome)
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list messages iterate")
}

func (s *SQLiteStore) OutcomeStats(ctx context.Context, since time.Time) (*OutcomeStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, count(*), coalesce(sum(dispatch_failed), 0)
		 FROM messages WHERE processed_at >= ? GROUP BY outcome`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: outcome stats")
	}
	defer rows.Close()

	stats := &OutcomeStats{Outcomes: make(map[model.Outcome]int)}
	for rows.Next() {
		var outcome string
		var count, failed int
		if err := rows.Scan(&outcome, &count, &failed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome stats")
		}
		stats.Outcomes[model.Outcome(outcome)] = count
		stats.Processed += count
		stats.DispatchFailures += failed
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: outcome stats iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status string
	var countsJSON sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &status, &countsJSON, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Status = model.RunStatus(status)
	if countsJSON.Valid {
		r.Counts = &model.RunCounts{}
		if err := json.Unmarshal([]byte(countsJSON.String), r.Counts); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal counts")
		}
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
