package mail

import (
	"io"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/rotisserie/eris"

	"github.com/sells-group/autoreply/internal/model"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Parse reads one RFC 5322 message and produces an immutable Message
// record with its thread key derived. domain seeds synthesized keys for
// messages with no usable threading headers.
func Parse(r io.Reader, domain string) (*model.Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "mail: create reader")
	}
	defer mr.Close()

	headers := Headers{
		MessageID:  mr.Header.Get("Message-Id"),
		InReplyTo:  mr.Header.Get("In-Reply-To"),
		References: mr.Header.Get("References"),
	}

	sender := ""
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		sender = addrs[0].Address
	}

	subject, err := mr.Header.Subject()
	if err != nil {
		subject = mr.Header.Get("Subject")
	}

	body, err := extractBody(mr)
	if err != nil {
		return nil, err
	}

	return &model.Message{
		ID:         strings.Trim(headers.MessageID, "<>"),
		ThreadKey:  ThreadKey(headers, domain),
		MessageID:  headers.MessageID,
		References: headers.References,
		Sender:     sender,
		Subject:    subject,
		Body:       body,
	}, nil
}

// ParseThreadKey derives the thread key from a raw message header
// block without reading the body. Used for indexing draft folders where
// only threading identity matters.
func ParseThreadKey(r io.Reader, domain string) (string, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return "", eris.Wrap(err, "mail: read headers")
	}
	headers := Headers{
		MessageID:  entity.Header.Get("Message-Id"),
		InReplyTo:  entity.Header.Get("In-Reply-To"),
		References: entity.Header.Get("References"),
	}
	return ThreadKey(headers, domain), nil
}

// extractBody walks the MIME parts preferring text/plain. A text/html
// part is kept as fallback and converted to markdown so the drafting
// model sees readable text.
func extractBody(mr *mail.Reader) (string, error) {
	var plain, html string

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", eris.Wrap(err, "mail: next part")
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, err := h.ContentType()
		if err != nil {
			continue
		}

		switch ct {
		case "text/plain":
			if plain == "" {
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return "", eris.Wrap(err, "mail: read text part")
				}
				plain = string(b)
			}
		case "text/html":
			if html == "" {
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return "", eris.Wrap(err, "mail: read html part")
				}
				html = string(b)
			}
		}
	}

	if plain != "" {
		return cleanBody(plain), nil
	}
	if html != "" {
		text, err := md.NewConverter("", true, nil).ConvertString(html)
		if err != nil {
			return "", eris.Wrap(err, "mail: convert html body")
		}
		return cleanBody(text), nil
	}
	return "", nil
}

// cleanBody collapses runs of whitespace so header-quoted replies and
// HTML remnants become a single prompt-friendly line.
func cleanBody(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
