package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreadKey_ReferencesWinOverInReplyTo(t *testing.T) {
	h := Headers{
		MessageID:  "<msg3@example.com>",
		InReplyTo:  "<msg2@example.com>",
		References: "<root@example.com> <msg2@example.com>",
	}
	assert.Equal(t, "root@example.com", ThreadKey(h, "example.com"))
}

func TestThreadKey_InReplyToFallback(t *testing.T) {
	h := Headers{
		MessageID: "<msg2@example.com>",
		InReplyTo: "<root@example.com>",
	}
	assert.Equal(t, "root@example.com", ThreadKey(h, "example.com"))
}

func TestThreadKey_MessageIDFallback(t *testing.T) {
	h := Headers{MessageID: "<solo@example.com>"}
	assert.Equal(t, "solo@example.com", ThreadKey(h, "example.com"))
}

func TestThreadKey_SynthesizedWhenNoHeaders(t *testing.T) {
	k1 := ThreadKey(Headers{}, "example.com")
	k2 := ThreadKey(Headers{}, "example.com")

	assert.NotEmpty(t, k1)
	assert.NotEmpty(t, k2)
	// Non-determinism only in the no-header case.
	assert.NotEqual(t, k1, k2)
	assert.Contains(t, k1, "@example.com")
}

func TestThreadKey_WhitespaceOnlyReferences(t *testing.T) {
	h := Headers{References: "   ", MessageID: "<m@example.com>"}
	assert.Equal(t, "m@example.com", ThreadKey(h, "example.com"))
}
