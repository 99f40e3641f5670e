package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/autoreply/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. Narrowed to an
// interface so tests can substitute a mock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path ledger writes.
var preparedStatements = map[string]string{
	"insert_run":     `INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
	"finish_run":     `UPDATE runs SET status = $1, counts = $2, finished_at = $3 WHERE id = $4`,
	"get_run":        `SELECT id, status, counts, started_at, finished_at FROM runs WHERE id = $1`,
	"insert_message": `INSERT INTO messages (id, run_id, thread_key, sender, subject, category, outcome, trials, dispatch_failed, processed_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 5
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool creates a PostgresStore over an existing pool.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status      TEXT NOT NULL DEFAULT 'running',
	counts      JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id          TEXT NOT NULL REFERENCES runs(id),
	thread_key      TEXT NOT NULL,
	sender          TEXT NOT NULL,
	subject         TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	outcome         TEXT NOT NULL,
	trials          INTEGER NOT NULL DEFAULT 0,
	dispatch_failed BOOLEAN NOT NULL DEFAULT false,
	processed_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_messages_run_id ON messages(run_id);
CREATE INDEX IF NOT EXISTS idx_messages_thread_key ON messages(thread_key);
CREATE INDEX IF NOT EXISTS idx_messages_processed_at ON messages(processed_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, counts model.RunCounts) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counts")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, counts = $2, finished_at = $3 WHERE id = $4`,
		string(status), countsJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, counts, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	)
	return scanPGRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, counts, started_at, finished_at FROM runs`
	var args []any

	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordMessage(ctx context.Context, rec *model.MessageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, run_id, thread_key, sender, subject, category, outcome, trials, dispatch_failed, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.RunID, rec.ThreadKey, rec.Sender, rec.Subject,
		string(rec.Category), string(rec.Outcome), rec.Trials, rec.DispatchFailed, rec.ProcessedAt,
	)
	return eris.Wrap(err, "postgres: insert message")
}

func (s *PostgresStore) ListMessages(ctx context.Context, runID string) ([]model.MessageRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, thread_key, sender, subject, category, outcome, trials, dispatch_failed, processed_at
		 FROM messages WHERE run_id = $1 ORDER BY processed_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list messages")
	}
	defer rows.Close()

	var recs []model.MessageRecord
	for rows.Next() {
		var rec model.MessageRecord
		var category, outcome string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.ThreadKey, &rec.Sender, &rec.Subject,
			&category, &outcome, &rec.Trials, &rec.DispatchFailed, &rec.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan message")
		}
		rec.Category = model.Category(category)
		rec.Outcome = model.Outcome(outcome)
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list messages iterate")
}

func (s *PostgresStore) OutcomeStats(ctx context.Context, since time.Time) (*OutcomeStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT outcome, count(*), count(*) FILTER (WHERE dispatch_failed)
		 FROM messages WHERE processed_at >= $1 GROUP BY outcome`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: outcome stats")
	}
	defer rows.Close()

	stats := &OutcomeStats{Outcomes: make(map[model.Outcome]int)}
	for rows.Next() {
		var outcome string
		var count, failed int
		if err := rows.Scan(&outcome, &count, &failed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome stats")
		}
		stats.Outcomes[model.Outcome(outcome)] = count
		stats.Processed += count
		stats.DispatchFailures += failed
	}
	return stats, eris.Wrap(rows.Err(), "postgres: outcome stats iterate")
}

func scanPGRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var countsJSON []byte
	var finishedAt *time.Time

	err := row.Scan(&r.ID, &status, &countsJSON, &r.StartedAt, &finishedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	r.Status = model.RunStatus(status)
	if len(countsJSON) > 0 {
		r.Counts = &model.RunCounts{}
		if err := json.Unmarshal(countsJSON, r.Counts); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal counts")
		}
	}
	r.FinishedAt = finishedAt
	return &r, nil
}
