// Package pipeline drives inbound mail through categorization,
// knowledge enrichment, drafting, review, and dispatch. The control
// flow is an explicit state machine: every transition is a named state,
// and a message leaves the working queue at exactly one place.
package pipeline

import (
	"context"

	"github.com/sells-group/autoreply/internal/agents"
	"github.com/sells-group/autoreply/internal/model"
)

// Agent is the set of model-backed capabilities the controller calls.
// Implemented by agents.Agents.
type Agent interface {
	Categorize(ctx context.Context, msg *model.Message) (model.Category, error)
	BuildQueries(ctx context.Context, msg *model.Message) ([]string, error)
	Draft(ctx context.Context, req agents.DraftRequest) (string, error)
	Verify(ctx context.Context, msg *model.Message, draft string) (agents.Verdict, error)
}

// Researcher answers one knowledge base query. ok is false when the
// knowledge base cannot answer it.
type Researcher interface {
	Lookup(ctx context.Context, query string) (answer string, ok bool, err error)
}
