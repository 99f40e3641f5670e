package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/autoreply/internal/agents"
)

// enrich answers the message's knowledge base queries one at a time.
// The first unanswerable query short-circuits the rest: if the
// knowledge base cannot support a complete reply, a partial one is
// worse than none, so the message escalates to a human.
func (c *Controller) enrich(ctx context.Context) state {
	cur := c.cur

	queries, err := c.agent.BuildQueries(ctx, cur.msg)
	if err != nil {
		return c.escalate("query building failed", err)
	}
	cur.queries = queries

	if len(queries) == 0 {
		// Nothing to research: draft from the message alone.
		return stateRevise
	}

	for _, query := range queries {
		answer, ok, err := c.research.Lookup(ctx, query)
		if err != nil {
			return c.escalate("knowledge lookup failed", err)
		}
		if !ok {
			zap.L().Info("pipeline: query unanswerable, escalating",
				zap.String("thread_key", cur.msg.ThreadKey),
				zap.String("query", query),
			)
			return c.escalate("knowledge base cannot answer", nil)
		}
		cur.notes = append(cur.notes, agents.Note{Query: query, Answer: answer})
	}

	zap.L().Debug("pipeline: enrichment complete",
		zap.String("thread_key", cur.msg.ThreadKey),
		zap.Int("queries", len(queries)),
	)
	return stateRevise
}
