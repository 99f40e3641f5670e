// Package store persists the run ledger: one row per polling cycle and
// one row per processed message. Backed by SQLite for single-host
// deployments and Postgres where the ledger is shared.
package store

import (
	"context"
	"time"

	"github.com/sells-group/autoreply/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// OutcomeStats aggregates message outcomes over a time window.
type OutcomeStats struct {
	Processed        int                   `json:"processed"`
	Outcomes         map[model.Outcome]int `json:"outcomes"`
	DispatchFailures int                   `json:"dispatch_failures"`
}

// Store defines the persistence interface for the reply pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, counts model.RunCounts) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Messages
	RecordMessage(ctx context.Context, rec *model.MessageRecord) error
	ListMessages(ctx context.Context, runID string) ([]model.MessageRecord, error)
	OutcomeStats(ctx context.Context, since time.Time) (*OutcomeStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
