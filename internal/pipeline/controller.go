package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/autoreply/internal/config"
	"github.com/sells-group/autoreply/internal/mailbox"
	"github.com/sells-group/autoreply/internal/model"
	"github.com/sells-group/autoreply/internal/store"
)

// Controller runs one processing cycle over the inbox.
type Controller struct {
	cfg      *config.Config
	store    store.Store
	reader   mailbox.Reader
	writer   mailbox.Writer
	agent    Agent
	research Researcher
	selfAddr string

	queue *WorkingQueue
	cur   *messageState
}

// New creates a Controller with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	reader mailbox.Reader,
	writer mailbox.Writer,
	agent Agent,
	research Researcher,
	selfAddr string,
) *Controller {
	return &Controller{
		cfg:      cfg,
		store:    st,
		reader:   reader,
		writer:   writer,
		agent:    agent,
		research: research,
		selfAddr: selfAddr,
	}
}

// Run snapshots the inbox and drains the working queue through the
// state machine. The returned run carries the outcome counts; the same
// counts land in the ledger.
func (c *Controller) Run(ctx context.Context) (*model.Run, error) {
	log := zap.L()
	log.Info("pipeline: starting run")

	run, err := c.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	queue, err := c.buildQueue(ctx)
	if err != nil {
		// An unreachable inbox leaves nothing to do. The run ends with
		// an empty queue and the next cycle tries again.
		log.Error("pipeline: inbox snapshot failed", zap.Error(err))
		queue = &WorkingQueue{}
	}
	c.queue = queue

	counts := model.RunCounts{}
	st := stateCheckEmpty

	for st != stateDone {
		if err := ctx.Err(); err != nil {
			c.finishRun(ctx, run, model.RunStatusFailed)
			return run, eris.Wrap(err, "pipeline: run canceled")
		}

		next := c.step(ctx, st)
		log.Debug("pipeline: transition",
			zap.String("from", st.String()),
			zap.String("to", next.String()),
		)

		// Terminal bookkeeping happens on the finalize -> check_empty
		// edge, after the message has been popped.
		if st == stateFinalize {
			c.record(ctx, run.ID, &counts)
			c.cur = nil
		}
		st = next
	}

	run.Counts = &counts
	if err := c.store.FinishRun(ctx, run.ID, model.RunStatusComplete, counts); err != nil {
		log.Warn("pipeline: failed to finish run", zap.Error(err))
	}
	run.Status = model.RunStatusComplete

	log.Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.Int("processed", counts.Processed),
		zap.Int("sent", counts.Sent),
		zap.Int("drafted", counts.Drafted),
		zap.Int("escalated", counts.Escalated),
		zap.Int("exhausted", counts.Exhausted),
	)
	return run, nil
}

// step executes one state and returns the next. All branching of the
// pipeline lives here and in the per-state methods; no state is entered
// from anywhere else.
func (c *Controller) step(ctx context.Context, st state) state {
	switch st {
	case stateCheckEmpty:
		tail := c.queue.Tail()
		if tail == nil {
			return stateDone
		}
		c.cur = newMessageState(tail)
		return stateCategorize

	case stateCategorize:
		return c.categorize(ctx)

	case stateRoute:
		return c.route()

	case stateEnrich:
		return c.enrich(ctx)

	case stateRevise:
		return c.revise(ctx)

	case stateDispatch:
		return c.dispatch(ctx)

	case stateFinalize:
		// The single pop site.
		c.queue.Pop()
		return stateCheckEmpty

	default:
		zap.L().Error("pipeline: invalid state", zap.String("state", st.String()))
		return stateDone
	}
}

// categorize classifies the current message. A classification failure
// escalates the message rather than wedging the queue.
func (c *Controller) categorize(ctx context.Context) state {
	cat, err := c.agent.Categorize(ctx, c.cur.msg)
	if err != nil {
		return c.escalate("categorize failed", err)
	}
	c.cur.category = cat
	return stateRoute
}

// route branches on the category.
func (c *Controller) route() state {
	cur := c.cur
	switch cur.category.Route() {
	case model.RouteEnrich:
		return stateEnrich
	case model.RouteSkipUnrelated:
		cur.outcome = model.OutcomeSkippedUnrelated
		return stateFinalize
	case model.RouteSkipSpam:
		cur.outcome = model.OutcomeSkippedSpam
		return stateFinalize
	default:
		// Not product related: draft directly with empty context.
		return stateRevise
	}
}

// escalate marks the current message for human attention and moves to
// finalize. The message stays read in the inbox; the alerter surfaces
// the backlog.
func (c *Controller) escalate(reason string, err error) state {
	zap.L().Error("pipeline: escalating message",
		zap.String("thread_key", c.cur.msg.ThreadKey),
		zap.String("reason", reason),
		zap.Error(err),
	)
	c.cur.outcome = model.OutcomeEscalated
	return stateFinalize
}

// record writes the current message's ledger row and tallies counts.
func (c *Controller) record(ctx context.Context, runID string, counts *model.RunCounts) {
	cur := c.cur
	counts.Add(cur.outcome)
	if cur.dispatchFailed {
		counts.DispatchFailures++
	}

	rec := &model.MessageRecord{
		RunID:          runID,
		ThreadKey:      cur.msg.ThreadKey,
		Sender:         cur.msg.Sender,
		Subject:        cur.msg.Subject,
		Category:       cur.category,
		Outcome:        cur.outcome,
		Trials:         cur.trials,
		DispatchFailed: cur.dispatchFailed,
		ProcessedAt:    time.Now().UTC(),
	}
	if err := c.store.RecordMessage(ctx, rec); err != nil {
		zap.L().Warn("pipeline: failed to record message",
			zap.String("thread_key", cur.msg.ThreadKey),
			zap.Error(err),
		)
	}

	zap.L().Info("pipeline: message processed",
		zap.String("thread_key", cur.msg.ThreadKey),
		zap.String("category", string(cur.category)),
		zap.String("outcome", string(cur.outcome)),
		zap.Int("trials", cur.trials),
	)
}

func (c *Controller) finishRun(ctx context.Context, run *model.Run, status model.RunStatus) {
	run.Status = status
	if err := c.store.FinishRun(ctx, run.ID, status, model.RunCounts{}); err != nil {
		zap.L().Warn("pipeline: failed to finish run", zap.Error(err))
	}
}
