package model

import "time"

// RunStatus tracks a polling cycle through the ledger.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunCounts tallies terminal outcomes for one run.
type RunCounts struct {
	Processed        int `json:"processed"`
	Sent             int `json:"sent"`
	Drafted          int `json:"drafted"`
	Escalated        int `json:"escalated"`
	SkippedUnrelated int `json:"skipped_unrelated"`
	SkippedSpam      int `json:"skipped_spam"`
	Exhausted        int `json:"exhausted"`
	DispatchFailures int `json:"dispatch_failures"`
}

// Add tallies an outcome.
func (c *RunCounts) Add(o Outcome) {
	c.Processed++
	switch o {
	case OutcomeSent:
		c.Sent++
	case OutcomeDrafted:
		c.Drafted++
	case OutcomeEscalated:
		c.Escalated++
	case OutcomeSkippedUnrelated:
		c.SkippedUnrelated++
	case OutcomeSkippedSpam:
		c.SkippedSpam++
	case OutcomeExhausted:
		c.Exhausted++
	}
}

// Run is one polling cycle recorded in the ledger.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Counts     *RunCounts `json:"counts,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// MessageRecord is the ledger row for one processed message.
type MessageRecord struct {
	ID              string    `json:"id"`
	RunID           string    `json:"run_id"`
	ThreadKey       string    `json:"thread_key"`
	Sender          string    `json:"sender"`
	Subject         string    `json:"subject"`
	Category        Category  `json:"category"`
	Outcome         Outcome   `json:"outcome"`
	Trials          int       `json:"trials"`
	DispatchFailed  bool      `json:"dispatch_failed"`
	ProcessedAt     time.Time `json:"processed_at"`
}
