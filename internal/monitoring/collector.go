// Package monitoring aggregates ledger outcomes into metrics and raises
// webhook alerts when a run looks unhealthy.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/autoreply/internal/config"
	"github.com/sells-group/autoreply/internal/model"
	"github.com/sells-group/autoreply/internal/store"
)

// MetricsSnapshot summarizes message outcomes over the lookback window.
type MetricsSnapshot struct {
	LookbackHours    int                   `json:"lookback_hours"`
	Processed        int                   `json:"processed"`
	Outcomes         map[model.Outcome]int `json:"outcomes"`
	EscalationRate   float64               `json:"escalation_rate"`
	DispatchFailures int                   `json:"dispatch_failures"`
	CollectedAt      time.Time             `json:"collected_at"`
}

// Collector builds metrics snapshots from the run ledger.
type Collector struct {
	store store.Store
	cfg   config.MonitoringConfig
}

// NewCollector creates a Collector over the given store.
func NewCollector(st store.Store, cfg config.MonitoringConfig) *Collector {
	return &Collector{store: st, cfg: cfg}
}

// Collect aggregates outcomes over the configured lookback window.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	lookback := c.cfg.LookbackHours
	if lookback <= 0 {
		lookback = 24
	}

	stats, err := c.store.OutcomeStats(ctx, time.Now().Add(-time.Duration(lookback)*time.Hour))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: collect outcome stats")
	}

	snap := &MetricsSnapshot{
		LookbackHours:    lookback,
		Processed:        stats.Processed,
		Outcomes:         stats.Outcomes,
		DispatchFailures: stats.DispatchFailures,
		CollectedAt:      time.Now().UTC(),
	}

	// Escalation rate counts escalated plus exhausted messages: both mean
	// the pipeline gave up and a human has to step in.
	if stats.Processed > 0 {
		gaveUp := stats.Outcomes[model.OutcomeEscalated] + stats.Outcomes[model.OutcomeExhausted]
		snap.EscalationRate = float64(gaveUp) / float64(stats.Processed)
	}
	return snap, nil
}
