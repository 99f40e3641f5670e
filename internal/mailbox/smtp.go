package mailbox

import (
	"bytes"
	"context"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/autoreply/internal/mail"
	"github.com/sells-group/autoreply/internal/model"
	"github.com/sells-group/autoreply/internal/resilience"
)

// Send delivers a reply to the original sender over SMTP with implicit
// TLS. 4xx responses are tagged transient so callers can tell a greylist
// deferral from a permanent rejection.
func (c *Client) Send(ctx context.Context, original *model.Message, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := mail.BuildReply(*original, c.cfg.Address, body, c.cfg.Domain())
	if err != nil {
		return err
	}

	auth := sasl.NewPlainClient("", c.cfg.Address, c.cfg.Password)
	err = smtp.SendMailTLS(c.cfg.SMTPAddr, auth, c.cfg.Address, []string{original.Sender}, bytes.NewReader(raw))
	if err != nil {
		wrapped := eris.Wrap(err, "mailbox: smtp send")
		if isTemporarySMTP(err) {
			return resilience.NewTransientError(wrapped, 0)
		}
		return wrapped
	}

	zap.L().Info("mailbox: sent reply",
		zap.String("thread_key", original.ThreadKey),
		zap.String("to", original.Sender),
	)
	return nil
}

// isTemporarySMTP reports whether an SMTP failure is a 4xx transient
// rejection rather than a permanent one.
func isTemporarySMTP(err error) bool {
	var smtpErr *smtp.SMTPError
	if eris.As(err, &smtpErr) {
		return smtpErr.Code >= 400 && smtpErr.Code < 500
	}
	msg := err.Error()
	for _, code := range []string{"421", "450", "451", "452"} {
		if strings.Contains(msg, code+" ") {
			return true
		}
	}
	return false
}
