package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/autoreply/internal/agents"
	"github.com/sells-group/autoreply/internal/config"
	"github.com/sells-group/autoreply/internal/model"
	"github.com/sells-group/autoreply/internal/store"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) FetchUnread(ctx context.Context, since time.Time, max int) ([]*model.Message, error) {
	args := m.Called(ctx, since, max)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Message), args.Error(1)
}

func (m *mockReader) FetchDraftThreads(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) Send(ctx context.Context, original *model.Message, body string) error {
	args := m.Called(ctx, original, body)
	return args.Error(0)
}

func (m *mockWriter) CreateDraft(ctx context.Context, original *model.Message, body string) error {
	args := m.Called(ctx, original, body)
	return args.Error(0)
}

type mockAgent struct {
	mock.Mock
}

func (m *mockAgent) Categorize(ctx context.Context, msg *model.Message) (model.Category, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(model.Category), args.Error(1)
}

func (m *mockAgent) BuildQueries(ctx context.Context, msg *model.Message) ([]string, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockAgent) Draft(ctx context.Context, req agents.DraftRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockAgent) Verify(ctx context.Context, msg *model.Message, draft string) (agents.Verdict, error) {
	args := m.Called(ctx, msg, draft)
	return args.Get(0).(agents.Verdict), args.Error(1)
}

type mockResearcher struct {
	mock.Mock
}

func (m *mockResearcher) Lookup(ctx context.Context, query string) (string, bool, error) {
	args := m.Called(ctx, query)
	return args.String(0), args.Bool(1), args.Error(2)
}

// fixtures

func testConfig(humanReview bool) *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{
			HumanReview: humanReview,
			MaxTrials:   3,
			MaxResults:  50,
			WindowHours: 8,
			MaxQueries:  3,
		},
	}
}

func newLedger(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func inboundMessage(threadKey, sender string) *model.Message {
	return &model.Message{
		ID:        threadKey + "-id",
		ThreadKey: threadKey,
		MessageID: "<" + threadKey + "-id>",
		Sender:    sender,
		Subject:   "subject " + threadKey,
		Body:      "body " + threadKey,
	}
}
