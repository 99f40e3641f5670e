package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/autoreply/internal/model"
)

// dispatch delivers the approved draft: saved to the draft folder when
// human review is on, sent directly otherwise. A delivery failure is
// recorded against the message but never blocks the queue; the inbox
// copy is already marked read either way, so retrying in a later run
// would double-process.
func (c *Controller) dispatch(ctx context.Context) state {
	cur := c.cur

	if c.cfg.Pipeline.HumanReview {
		if err := c.writer.CreateDraft(ctx, cur.msg, cur.draft); err != nil {
			zap.L().Error("pipeline: draft creation failed",
				zap.String("thread_key", cur.msg.ThreadKey),
				zap.Error(err),
			)
			cur.dispatchFailed = true
		}
		cur.outcome = model.OutcomeDrafted
		return stateFinalize
	}

	if err := c.writer.Send(ctx, cur.msg, cur.draft); err != nil {
		zap.L().Error("pipeline: send failed",
			zap.String("thread_key", cur.msg.ThreadKey),
			zap.String("to", cur.msg.Sender),
			zap.Error(err),
		)
		cur.dispatchFailed = true
	}
	cur.outcome = model.OutcomeSent
	return stateFinalize
}
