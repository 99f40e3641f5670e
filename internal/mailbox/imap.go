package mailbox

import (
	"bytes"
	"context"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/autoreply/internal/mail"
	"github.com/sells-group/autoreply/internal/model"
	"github.com/sells-group/autoreply/internal/resilience"
)

// dialIMAP opens an authenticated IMAP session.
func (c *Client) dialIMAP() (*imapclient.Client, error) {
	conn, err := imapclient.DialTLS(c.cfg.IMAPAddr, nil)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "mailbox: dial imap"), 0)
	}
	if err := conn.Login(c.cfg.Address, c.cfg.Password).Wait(); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "mailbox: imap login")
	}
	return conn, nil
}

func logout(conn *imapclient.Client) {
	if err := conn.Logout().Wait(); err != nil {
		zap.L().Debug("mailbox: imap logout", zap.Error(err))
	}
	conn.Close()
}

// FetchUnread returns unread messages received since the window start,
// oldest first. Every fetched message is marked read so the next run
// never sees it again, whatever its outcome.
func (c *Client) FetchUnread(ctx context.Context, since time.Time, max int) ([]*model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := c.dialIMAP()
	if err != nil {
		return nil, err
	}
	defer logout(conn)

	if _, err := conn.Select("INBOX", nil).Wait(); err != nil {
		return nil, eris.Wrap(err, "mailbox: select inbox")
	}

	criteria := &imap.SearchCriteria{
		Since:   since,
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	found, err := conn.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, eris.Wrap(err, "mailbox: search unseen")
	}

	uids := found.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if max > 0 && len(uids) > max {
		uids = uids[:max]
	}

	bodySection := &imap.FetchItemBodySection{}
	bufs, err := conn.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, eris.Wrap(err, "mailbox: fetch messages")
	}

	domain := c.cfg.Domain()
	messages := make([]*model.Message, 0, len(bufs))
	for _, buf := range bufs {
		raw := buf.FindBodySection(bodySection)
		if len(raw) == 0 {
			zap.L().Warn("mailbox: fetched message has no body section",
				zap.Uint32("uid", uint32(buf.UID)),
			)
			continue
		}
		msg, err := mail.Parse(bytes.NewReader(raw), domain)
		if err != nil {
			zap.L().Warn("mailbox: unparseable message skipped",
				zap.Uint32("uid", uint32(buf.UID)),
				zap.Error(err),
			)
			continue
		}
		messages = append(messages, msg)
	}

	// Fetching consumes the message: mark everything read even when
	// parsing failed, so a poison message cannot wedge the inbox.
	markSeen := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}
	if err := conn.Store(imap.UIDSetNum(uids...), markSeen, nil).Close(); err != nil {
		return nil, eris.Wrap(err, "mailbox: mark seen")
	}

	zap.L().Info("mailbox: fetched unread messages",
		zap.Int("found", len(uids)),
		zap.Int("parsed", len(messages)),
	)
	return messages, nil
}

// FetchDraftThreads returns the thread key of every message in the
// draft folder. Only headers are fetched.
func (c *Client) FetchDraftThreads(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := c.dialIMAP()
	if err != nil {
		return nil, err
	}
	defer logout(conn)

	folder, err := c.draftFolder(conn)
	if err != nil {
		return nil, err
	}

	selected, err := conn.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return nil, eris.Wrapf(err, "mailbox: select %s", folder)
	}
	if selected.NumMessages == 0 {
		return nil, nil
	}

	headerSection := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierHeader,
		Peek:      true,
	}
	seqSet := imap.SeqSet{}
	seqSet.AddRange(1, selected.NumMessages)
	bufs, err := conn.Fetch(seqSet, &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{headerSection},
	}).Collect()
	if err != nil {
		return nil, eris.Wrap(err, "mailbox: fetch draft headers")
	}

	domain := c.cfg.Domain()
	keys := make([]string, 0, len(bufs))
	for _, buf := range bufs {
		raw := buf.FindBodySection(headerSection)
		if len(raw) == 0 {
			continue
		}
		key, err := mail.ParseThreadKey(bytes.NewReader(raw), domain)
		if err != nil {
			zap.L().Warn("mailbox: unparseable draft headers skipped", zap.Error(err))
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// CreateDraft appends a reply to the draft folder with the \Draft flag
// so a human can review and send it from their mail client.
func (c *Client) CreateDraft(ctx context.Context, original *model.Message, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := mail.BuildReply(*original, c.cfg.Address, body, c.cfg.Domain())
	if err != nil {
		return err
	}

	conn, err := c.dialIMAP()
	if err != nil {
		return err
	}
	defer logout(conn)

	folder, err := c.draftFolder(conn)
	if err != nil {
		return err
	}

	cmd := conn.Append(folder, int64(len(raw)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagDraft, imap.FlagSeen},
		Time:  time.Now(),
	})
	if _, err := cmd.Write(raw); err != nil {
		return eris.Wrap(err, "mailbox: write draft")
	}
	if err := cmd.Close(); err != nil {
		return eris.Wrap(err, "mailbox: close draft append")
	}
	if _, err := cmd.Wait(); err != nil {
		return eris.Wrap(err, "mailbox: append draft")
	}

	zap.L().Info("mailbox: created draft",
		zap.String("thread_key", original.ThreadKey),
		zap.String("folder", folder),
	)
	return nil
}

// draftFolder resolves the draft folder name: the configured name when
// the server knows it, otherwise the first folder flagged \Drafts.
func (c *Client) draftFolder(conn *imapclient.Client) (string, error) {
	if c.cfg.DraftFolder != "" {
		if _, err := conn.Status(c.cfg.DraftFolder, &imap.StatusOptions{NumMessages: true}).Wait(); err == nil {
			return c.cfg.DraftFolder, nil
		}
	}

	boxes, err := conn.List("", "*", nil).Collect()
	if err != nil {
		return "", eris.Wrap(err, "mailbox: list folders")
	}
	for _, mb := range boxes {
		for _, attr := range mb.Attrs {
			if attr == imap.MailboxAttrDrafts {
				return mb.Mailbox, nil
			}
		}
	}
	return "", eris.Errorf("mailbox: draft folder %q not found", c.cfg.DraftFolder)
}
