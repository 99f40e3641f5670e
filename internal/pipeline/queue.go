package pipeline

import "github.com/sells-group/autoreply/internal/model"

// WorkingQueue holds the messages of one run. The tail is the current
// message; Pop removes it. Pops counts removals so a finished run can
// assert every queued message left exactly once.
type WorkingQueue struct {
	items []*model.Message
	pops  int
}

// Push appends a message. The most recently pushed message is processed
// first.
func (q *WorkingQueue) Push(msg *model.Message) {
	q.items = append(q.items, msg)
}

// Tail returns the current message, or nil when the queue is empty. The
// message stays queued until Pop.
func (q *WorkingQueue) Tail() *model.Message {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[len(q.items)-1]
}

// Pop removes and returns the current message.
func (q *WorkingQueue) Pop() *model.Message {
	if len(q.items) == 0 {
		return nil
	}
	msg := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	q.pops++
	return msg
}

// Len returns the number of queued messages.
func (q *WorkingQueue) Len() int {
	return len(q.items)
}

// Pops returns how many messages have been removed.
func (q *WorkingQueue) Pops() int {
	return q.pops
}
