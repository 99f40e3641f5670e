package mail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/autoreply/internal/model"
)

const rawPlain = "Message-Id: <msg1@customer.com>\r\n" +
	"From: Jo Customer <jo@customer.com>\r\n" +
	"To: support@acme.com\r\n" +
	"Subject: Pricing question\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Hi,\r\nwhat does the  pro plan cost?\r\n"

func TestParse_PlainText(t *testing.T) {
	msg, err := Parse(strings.NewReader(rawPlain), "acme.com")
	require.NoError(t, err)

	assert.Equal(t, "msg1@customer.com", msg.ID)
	assert.Equal(t, "msg1@customer.com", msg.ThreadKey)
	assert.Equal(t, "<msg1@customer.com>", msg.MessageID)
	assert.Equal(t, "jo@customer.com", msg.Sender)
	assert.Equal(t, "Pricing question", msg.Subject)
	assert.Equal(t, "Hi, what does the pro plan cost?", msg.Body)
}

func TestParse_ReplyUsesThreadRoot(t *testing.T) {
	raw := "Message-Id: <msg2@customer.com>\r\n" +
		"In-Reply-To: <reply1@acme.com>\r\n" +
		"References: <root@customer.com> <reply1@acme.com>\r\n" +
		"From: jo@customer.com\r\n" +
		"Subject: Re: Pricing question\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Thanks!\r\n"

	msg, err := Parse(strings.NewReader(raw), "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "root@customer.com", msg.ThreadKey)
}

func TestParse_HTMLFallback(t *testing.T) {
	raw := "Message-Id: <msg3@customer.com>\r\n" +
		"From: jo@customer.com\r\n" +
		"Subject: Hello\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><body><p>Does it support <b>SSO</b>?</p></body></html>\r\n"

	msg, err := Parse(strings.NewReader(raw), "acme.com")
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "SSO")
	assert.NotContains(t, msg.Body, "<b>")
}

func TestBuildReply_SetsThreadingHeaders(t *testing.T) {
	original := model.Message{
		Sender:     "jo@customer.com",
		Subject:    "Pricing question",
		MessageID:  "<msg1@customer.com>",
		References: "<root@customer.com>",
	}

	raw, err := BuildReply(original, "support@acme.com", "Hello,\nthe pro plan costs $42.", "acme.com")
	require.NoError(t, err)

	// Round-trip through the parser: the reply must land in the same thread.
	reply, err := Parse(strings.NewReader(string(raw)), "acme.com")
	require.NoError(t, err)

	assert.Equal(t, "root@customer.com", reply.ThreadKey)
	assert.Equal(t, "Re: Pricing question", reply.Subject)
	assert.Contains(t, reply.Body, "pro plan costs $42")

	text := string(raw)
	assert.Contains(t, text, "In-Reply-To: <msg1@customer.com>")
	assert.Contains(t, text, "To: <jo@customer.com>")
}

func TestReplySubject_NoDoublePrefix(t *testing.T) {
	assert.Equal(t, "Re: Hi", ReplySubject("Hi"))
	assert.Equal(t, "Re: Hi", ReplySubject("Re: Hi"))
}
