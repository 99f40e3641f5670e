package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/autoreply/internal/config"
	"github.com/sells-group/autoreply/internal/model"
	"github.com/sells-group/autoreply/internal/store"
)

func seededStore(t *testing.T, outcomes []model.Outcome) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	run, err := s.CreateRun(ctx)
	require.NoError(t, err)
	for i, o := range outcomes {
		require.NoError(t, s.RecordMessage(ctx, &model.MessageRecord{
			RunID:     run.ID,
			ThreadKey: "t",
			Sender:    "a@x.com",
			Subject:   "s",
			Outcome:   o,
			// One dispatch failure rides on the first escalated message.
			DispatchFailed: i == 0 && o == model.OutcomeEscalated,
		}))
	}
	return s
}

func TestCollectEscalationRate(t *testing.T) {
	s := seededStore(t, []model.Outcome{
		model.OutcomeEscalated,
		model.OutcomeExhausted,
		model.OutcomeSent,
		model.OutcomeSent,
	})

	c := NewCollector(s, config.MonitoringConfig{LookbackHours: 1})
	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Processed)
	assert.InDelta(t, 0.5, snap.EscalationRate, 1e-9)
	assert.Equal(t, 1, snap.DispatchFailures)
}

func TestEvaluateThresholds(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		EscalationRateThreshold: 0.3,
		DispatchFailureMax:      0,
	})

	snap := &MetricsSnapshot{
		Processed:        10,
		EscalationRate:   0.5,
		DispatchFailures: 2,
		LookbackHours:    24,
	}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertEscalationRate, alerts[0].Type)
	assert.Equal(t, AlertDispatchFailure, alerts[1].Type)
}

func TestEvaluateNeedsVolume(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{EscalationRateThreshold: 0.3})

	snap := &MetricsSnapshot{Processed: 2, EscalationRate: 1.0}
	assert.Empty(t, a.Evaluate(snap))
}

func TestSendAlertsPostsWebhook(t *testing.T) {
	var received Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertDispatchFailure, Severity: "high", Message: "boom"}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, AlertDispatchFailure, received.Type)
}

func TestSendAlertsNoWebhookConfigured(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertDispatchFailure}}))
}
