// Package mailbox is the IMAP/SMTP adapter for the support mailbox.
// Each operation dials a fresh connection and logs out when done, so a
// long poll interval never holds a dead session open.
package mailbox

import (
	"context"
	"time"

	"github.com/sells-group/autoreply/internal/config"
	"github.com/sells-group/autoreply/internal/model"
)

// Reader fetches inbound work from the mailbox.
type Reader interface {
	// FetchUnread returns unread messages received since the window
	// start, oldest first, marking each one read. max caps the result.
	FetchUnread(ctx context.Context, since time.Time, max int) ([]*model.Message, error)

	// FetchDraftThreads returns the thread keys of every message in the
	// draft folder.
	FetchDraftThreads(ctx context.Context) ([]string, error)
}

// Writer delivers replies.
type Writer interface {
	// Send delivers a reply to the original sender over SMTP.
	Send(ctx context.Context, original *model.Message, body string) error

	// CreateDraft places a reply in the draft folder for human review.
	CreateDraft(ctx context.Context, original *model.Message, body string) error
}

// Client implements Reader and Writer against real IMAP and SMTP
// servers.
type Client struct {
	cfg config.MailboxConfig
}

// NewClient creates a mailbox client from connection settings.
func NewClient(cfg config.MailboxConfig) *Client {
	return &Client{cfg: cfg}
}

// Address returns the mailbox's own address. The pipeline skips
// messages from this sender so drafts and auto-replies are never
// re-processed as inbound mail.
func (c *Client) Address() string {
	return c.cfg.Address
}
