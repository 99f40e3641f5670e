package model

// Message is an immutable snapshot of one inbound email, created at
// ingestion and never mutated afterwards.
type Message struct {
	// ID is the message's own Message-ID with angle brackets stripped.
	ID string `json:"id"`
	// ThreadKey identifies the conversation this message belongs to.
	// Derived once at ingestion; never recomputed.
	ThreadKey string `json:"thread_key"`
	// MessageID is the raw Message-ID header value, brackets included.
	MessageID string `json:"message_id"`
	// References is the raw References header value.
	References string `json:"references"`
	Sender     string `json:"sender"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

// DraftRef identifies a saved draft by the thread it replies to.
type DraftRef struct {
	ThreadKey string `json:"thread_key"`
	MessageID string `json:"message_id"`
}
