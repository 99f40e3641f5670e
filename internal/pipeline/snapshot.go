package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// buildQueue snapshots the inbox into a working queue. The snapshot is
// taken once per run; mail arriving later waits for the next run.
//
// Exclusions, applied in order per message:
//   - messages from the mailbox's own address (drafts echoed back,
//     auto-replies to auto-replies)
//   - threads that already have a saved draft awaiting review
//   - threads already seen earlier in this snapshot (first occurrence
//     wins)
func (c *Controller) buildQueue(ctx context.Context) (*WorkingQueue, error) {
	since := time.Now().Add(-time.Duration(c.cfg.Pipeline.WindowHours) * time.Hour)
	messages, err := c.reader.FetchUnread(ctx, since, c.cfg.Pipeline.MaxResults)
	if err != nil {
		// Nothing to recover: without the inbox there is no work.
		return nil, eris.Wrap(err, "pipeline: fetch unread")
	}

	// A failed draft index must not block the run. Worst case a thread
	// with a pending draft gets a second draft.
	drafted := make(map[string]bool)
	draftKeys, err := c.reader.FetchDraftThreads(ctx)
	if err != nil {
		zap.L().Warn("pipeline: draft index unavailable, proceeding without it", zap.Error(err))
	}
	for _, key := range draftKeys {
		drafted[key] = true
	}

	self := strings.ToLower(c.selfAddr)
	seen := make(map[string]bool)
	queue := &WorkingQueue{}
	skippedSelf, skippedDrafted, skippedDup := 0, 0, 0

	for _, msg := range messages {
		if strings.ToLower(msg.Sender) == self {
			skippedSelf++
			continue
		}
		if drafted[msg.ThreadKey] {
			skippedDrafted++
			continue
		}
		if seen[msg.ThreadKey] {
			skippedDup++
			continue
		}
		seen[msg.ThreadKey] = true
		queue.Push(msg)
	}

	zap.L().Info("pipeline: inbox snapshot",
		zap.Int("fetched", len(messages)),
		zap.Int("queued", queue.Len()),
		zap.Int("skipped_self", skippedSelf),
		zap.Int("skipped_drafted", skippedDrafted),
		zap.Int("skipped_duplicate", skippedDup),
	)
	return queue, nil
}
