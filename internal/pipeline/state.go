package pipeline

import (
	"github.com/sells-group/autoreply/internal/agents"
	"github.com/sells-group/autoreply/internal/model"
)

// state is a control state of the message loop.
type state int

const (
	// stateCheckEmpty decides between taking the next message and ending
	// the run.
	stateCheckEmpty state = iota
	// stateCategorize classifies the current message.
	stateCategorize
	// stateRoute branches on the category.
	stateRoute
	// stateEnrich answers the message's queries from the knowledge base.
	stateEnrich
	// stateRevise runs the draft/proofread loop.
	stateRevise
	// stateDispatch delivers the approved draft.
	stateDispatch
	// stateFinalize records the outcome and removes the message from the
	// queue. Every terminal branch converges here; it is the only state
	// that pops.
	stateFinalize
	// stateDone ends the run.
	stateDone
)

func (s state) String() string {
	switch s {
	case stateCheckEmpty:
		return "check_empty"
	case stateCategorize:
		return "categorize"
	case stateRoute:
		return "route"
	case stateEnrich:
		return "enrich"
	case stateRevise:
		return "revise"
	case stateDispatch:
		return "dispatch"
	case stateFinalize:
		return "finalize"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// messageState is the scratch state for the message being processed.
// Created fresh when a message becomes current; nothing carries over
// between messages.
type messageState struct {
	msg      *model.Message
	category model.Category
	queries  []string
	notes    []agents.Note
	history  []agents.Revision
	trials   int
	draft    string

	outcome        model.Outcome
	dispatchFailed bool
}

func newMessageState(msg *model.Message) *messageState {
	return &messageState{msg: msg}
}
