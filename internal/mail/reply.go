package mail

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/autoreply/internal/model"
)

// BuildReply renders a reply to the original message as a
// multipart/alternative body with text and HTML parts. The In-Reply-To
// and References headers are set from the original so the thread key of
// the conversation stays stable across the reply.
func BuildReply(original model.Message, from, body, domain string) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetMessageID(fmt.Sprintf("%s@%s", uuid.New(), domain))
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: original.Sender}})
	h.SetSubject(ReplySubject(original.Subject))

	if original.MessageID != "" {
		h.Set("In-Reply-To", original.MessageID)
		refs := strings.TrimSpace(original.References + " " + original.MessageID)
		h.Set("References", refs)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, eris.Wrap(err, "mail: create writer")
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, eris.Wrap(err, "mail: create inline")
	}

	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := iw.CreatePart(th)
	if err != nil {
		return nil, eris.Wrap(err, "mail: create text part")
	}
	if _, err := tw.Write([]byte(body)); err != nil {
		return nil, eris.Wrap(err, "mail: write text part")
	}
	tw.Close()

	var hh mail.InlineHeader
	hh.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	hw, err := iw.CreatePart(hh)
	if err != nil {
		return nil, eris.Wrap(err, "mail: create html part")
	}
	if _, err := hw.Write([]byte(htmlBody(body))); err != nil {
		return nil, eris.Wrap(err, "mail: write html part")
	}
	hw.Close()

	iw.Close()
	mw.Close()

	return buf.Bytes(), nil
}

// ReplySubject prefixes "Re: " unless the subject already carries it.
func ReplySubject(subject string) string {
	if strings.HasPrefix(subject, "Re: ") {
		return subject
	}
	return "Re: " + subject
}

func htmlBody(text string) string {
	escaped := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(text)
	return fmt.Sprintf("<html><body>%s</body></html>",
		strings.ReplaceAll(escaped, "\n", "<br>"))
}
