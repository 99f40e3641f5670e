package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/autoreply/internal/agents"
	"github.com/sells-group/autoreply/internal/model"
)

// revise runs the bounded draft/proofread loop. Each trial writes a
// draft and has the proofreader judge it; rejected drafts feed their
// feedback into the next trial. When the trial budget runs out the
// message leaves the queue as exhausted instead of looping back into
// classification.
func (c *Controller) revise(ctx context.Context) state {
	cur := c.cur
	maxTrials := c.cfg.Pipeline.MaxTrials
	if maxTrials <= 0 {
		maxTrials = 3
	}

	for cur.trials < maxTrials {
		cur.trials++

		draft, err := c.agent.Draft(ctx, agents.DraftRequest{
			Message: cur.msg,
			Notes:   cur.notes,
			History: cur.history,
		})
		if err != nil {
			return c.escalate("drafting failed", err)
		}
		cur.draft = draft

		verdict, err := c.agent.Verify(ctx, cur.msg, draft)
		if err != nil {
			return c.escalate("proofreading failed", err)
		}
		if verdict.Sendable {
			zap.L().Debug("pipeline: draft approved",
				zap.String("thread_key", cur.msg.ThreadKey),
				zap.Int("trials", cur.trials),
			)
			return stateDispatch
		}

		zap.L().Debug("pipeline: draft rejected",
			zap.String("thread_key", cur.msg.ThreadKey),
			zap.Int("trial", cur.trials),
			zap.String("feedback", verdict.Feedback),
		)
		cur.history = append(cur.history, agents.Revision{
			Draft:    draft,
			Feedback: verdict.Feedback,
		})
	}

	zap.L().Warn("pipeline: revision budget exhausted",
		zap.String("thread_key", cur.msg.ThreadKey),
		zap.Int("trials", cur.trials),
	)
	cur.outcome = model.OutcomeExhausted
	return stateFinalize
}
