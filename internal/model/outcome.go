package model

// Outcome is the terminal state a message reaches. Every message popped
// from the working queue lands on exactly one of these.
type Outcome string

const (
	// OutcomeSent means the reply was sent directly.
	OutcomeSent Outcome = "sent"
	// OutcomeDrafted means the reply was saved for human review.
	OutcomeDrafted Outcome = "drafted"
	// OutcomeSkippedUnrelated means the message was dropped as off-topic.
	OutcomeSkippedUnrelated Outcome = "skipped_unrelated"
	// OutcomeSkippedSpam means the message was dropped as spam.
	OutcomeSkippedSpam Outcome = "skipped_spam"
	// OutcomeEscalated means knowledge lookup flagged the message for a human.
	OutcomeEscalated Outcome = "escalated"
	// OutcomeExhausted means the revision loop hit its trial cap without
	// producing a sendable draft. A defined terminal, not an error.
	OutcomeExhausted Outcome = "exhausted"
)
