// Package mail derives conversation identity from message headers and
// converts between wire-format messages and pipeline Message records.
package mail

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Headers carries the threading-relevant header values of one message.
type Headers struct {
	MessageID  string
	InReplyTo  string
	References string
}

// ThreadKey derives a stable conversation key from message headers.
// Resolution order, first match wins:
//
//  1. First References token (the thread root set by the first reply).
//  2. In-Reply-To.
//  3. The message's own Message-ID.
//  4. A fresh random identifier, so dedup logic never sees an empty key.
//
// Angle brackets are stripped in every case. The synthesized fallback is
// not reproducible across calls.
func ThreadKey(h Headers, domain string) string {
	if refs := strings.Fields(h.References); len(refs) > 0 {
		return strings.Trim(refs[0], "<>")
	}
	if v := strings.TrimSpace(h.InReplyTo); v != "" {
		return strings.Trim(v, "<>")
	}
	if v := strings.TrimSpace(h.MessageID); v != "" {
		return strings.Trim(v, "<>")
	}
	return fmt.Sprintf("%s@%s", uuid.New(), domain)
}
