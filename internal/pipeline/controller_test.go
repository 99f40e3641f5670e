package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/autoreply/internal/agents"
	"github.com/sells-group/autoreply/internal/model"
)

const selfAddr = "support@example.com"

type fixture struct {
	reader   *mockReader
	writer   *mockWriter
	agent    *mockAgent
	research *mockResearcher
	ctrl     *Controller
}

func newFixture(t *testing.T, humanReview bool, inbox []*model.Message) *fixture {
	t.Helper()
	f := &fixture{
		reader:   new(mockReader),
		writer:   new(mockWriter),
		agent:    new(mockAgent),
		research: new(mockResearcher),
	}
	f.reader.On("FetchUnread", mock.Anything, mock.Anything, mock.Anything).Return(inbox, nil).Maybe()
	f.reader.On("FetchDraftThreads", mock.Anything).Return([]string{}, nil).Maybe()
	f.ctrl = New(testConfig(humanReview), newLedger(t), f.reader, f.writer, f.agent, f.research, selfAddr)
	return f
}

func TestRun_SendHappyPath(t *testing.T) {
	msg := inboundMessage("t1", "customer@x.com")
	f := newFixture(t, false, []*model.Message{msg})

	f.agent.On("Categorize", mock.Anything, msg).Return(model.CategoryProductEnquiry, nil)
	f.agent.On("BuildQueries", mock.Anything, msg).Return([]string{"q1", "q2"}, nil)
	f.research.On("Lookup", mock.Anything, "q1").Return("answer one", true, nil)
	f.research.On("Lookup", mock.Anything, "q2").Return("answer two", true, nil)
	f.agent.On("Draft", mock.Anything, mock.MatchedBy(func(req agents.DraftRequest) bool {
		// Each answer arrives paired with the query it addresses.
		return len(req.Notes) == 2 && len(req.History) == 0 &&
			req.Notes[0] == agents.Note{Query: "q1", Answer: "answer one"} &&
			req.Notes[1] == agents.Note{Query: "q2", Answer: "answer two"}
	})).Return("the reply", nil)
	f.agent.On("Verify", mock.Anything, msg, "the reply").Return(agents.Verdict{Sendable: true}, nil)
	f.writer.On("Send", mock.Anything, msg, "the reply").Return(nil)

	run, err := f.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 1, run.Counts.Processed)
	assert.Equal(t, 1, run.Counts.Sent)
	assert.Zero(t, run.Counts.DispatchFailures)

	recs, err := f.ctrl.store.ListMessages(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.OutcomeSent, recs[0].Outcome)
	assert.Equal(t, 1, recs[0].Trials)
	f.writer.AssertNotCalled(t, "CreateDraft", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_HumanReviewCreatesDraft(t *testing.T) {
	msg := inboundMessage("t1", "customer@x.com")
	f := newFixture(t, true, []*model.Message{msg})

	f.agent.On("Categorize", mock.Anything, msg).Return(model.CategoryCustomerFeedback, nil)
	f.agent.On("Draft", mock.Anything, mock.Anything).Return("thanks!", nil)
	f.agent.On("Verify", mock.Anything, msg, "thanks!").Return(agents.Verdict{Sendable: true}, nil)
	f.writer.On("CreateDraft", mock.Anything, msg, "thanks!").Return(nil)

	run, err := f.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Counts.Drafted)
	// Feedback drafts directly, no knowledge enrichment.
	f.agent.AssertNotCalled(t, "BuildQueries", mock.Anything, mock.Anything)
	f.writer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_SkipsSpamAndUnrelated(t *testing.T) {
	spam := inboundMessage("t-spam", "spammer@x.com")
	unrelated := inboundMessage("t-unrelated", "stranger@x.com")
	f := newFixture(t, true, []*model.Message{spam, unrelated})

	f.agent.On("Categorize", mock.Anything, spam).Return(model.CategorySpam, nil)
	f.agent.On("Categorize", mock.Anything, unrelated).Return(model.CategoryUnrelated, nil)

	run, err := f.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, run.Counts.Processed)
	assert.Equal(t, 1, run.Counts.SkippedSpam)
	assert.Equal(t, 1, run.Counts.SkippedUnrelated)
	f.agent.AssertNotCalled(t, "Draft", mock.Anything, mock.Anything)
}

func TestRun_UnknownCategoryDraftsWithoutEnrichment(t *testing.T) {
	msg := inboundMessage("t1", "customer@x.com")
	f := newFixture(t, true, []*model.Message{msg})

	f.agent.On("Categorize", mock.Anything, msg).Return(model.Category("llm_hallucination"), nil)
	f.agent.On("Draft", mock.Anything, mock.MatchedBy(func(req agents.DraftRequest) bool {
		return len(req.Notes) == 0
	})).Return("generic reply", nil)
	f.agent.On("Verify", mock.Anything, msg, "generic reply").Return(agents.Verdict{Sendable: true}, nil)
	f.writer.On("CreateDraft", mock.Anything, msg, "generic reply").Return(nil)

	run, err := f.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Counts.Drafted)
	f.agent.AssertNotCalled(t, "BuildQueries", mock.Anything, mock.Anything)
}

func TestRun_UnanswerableQueryEscalates(t *testing.T) {
	msg := inboundMessage("t1", "customer@x.com")
	f := newFixture(t, true, []*model.Message{msg})

	f.agent.On("Categorize", mock.Anything, msg).Return(model.CategoryProductEnquiry, nil)
	f.agent.On("BuildQueries", mock.Anything, msg).Return([]string{"q1", "q2", "q3"}, nil)
	f.research.On("Lookup", mock.Anything, "q1").Return("fine", true, nil)
	f.research.On("Lookup", mock.Anything, "q2").Return("", false, nil)

	run, err := f.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Counts.Escalated)
	// Short-circuit: the third query is never looked up and no draft is
	// written.
	f.research.AssertNotCalled(t, "Lookup", mock.Anything, "q3")
	f.agent.AssertNotCalled(t, "Draft", mock.Anything, mock.Anything)
}

func TestRun_RevisionFeedbackThenApproval(t *testing.T) {
	msg := inboundMessage("t1", "customer@x.com")
	f := newFixture(t, true, []*model.Message{msg})

	f.agent.On("Categorize", mock.Anything, msg).Return(model.CategoryCustomerComplaint, nil)
	f.agent.On("Draft", mock.Anything, mock.MatchedBy(func(req agents.DraftRequest) bool {
		return len(req.History) == 0
	})).Return("draft one", nil).Once()
	f.agent.On("Verify", mock.Anything, msg, "draft one").Return(agents.Verdict{Sendable: false, Feedback: "too curt"}, nil)
	f.agent.On("Draft", mock.Anything, mock.MatchedBy(func(req agents.DraftRequest) bool {
		return len(req.History) == 1 && req.History[0].Feedback == "too curt"
	})).Return("draft two", nil).Once()
	f.agent.On("Verify", mock.Anything, msg, "draft two").Return(agents.Verdict{Sendable: true}, nil)
	f.writer.On("CreateDraft", mock.Anything, msg, "draft two").Return(nil)

	run, err := f.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Counts.Drafted)

	recs, err := f.ctrl.store.ListMessages(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].Trials)
}

func TestRun_RevisionBudgetExhausted(t *testing.T) {
	msg := inboundMessage("t1", "customer@x.com")
	f := newFixture(t, true, []*model.Message{msg})

	f.agent.On("Categorize", mock.Anything, msg).Return(model.CategoryCustomerComplaint, nil)
	f.agent.On("Draft", mock.Anything, mock.Anything).Return("a draft", nil)
	f.agent.On("Verify", mock.Anything, msg, "a draft").Return(agents.Verdict{Sendable: false, Feedback: "no"}, nil)

	run, err := f.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Counts.Exhausted)
	f.agent.AssertNumberOfCalls(t, "Draft", 3)
	f.writer.AssertNotCalled(t, "CreateDraft", mock.Anything, mock.Anything, mock.Anything)

	recs, err := f.ctrl.store.ListMessages(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.OutcomeExhausted, recs[0].Outcome)
	assert.Equal(t, 3, recs[0].Trials)
}

func TestRun_CategorizeErrorEscalates(t *testing.T) {
	msg := inboundMessage("t1", "customer@x.com")
	f := newFixture(t, true, []*model.Message{msg})

	f.agent.On("Categorize", mock.Anything, msg).Return(model.Category(""), eris.New("api down"))

	run, err := f.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Counts.Escalated)
}

func TestRun_DispatchFailureStillPops(t *testing.T) {
	first := inboundMessage("t1", "a@x.com")
	second := inboundMessage("t2", "b@x.com")
	f := newFixture(t, false, []*model.Message{first, second})

	f.agent.On("Categorize", mock.Anything, mock.Anything).Return(model.CategoryCustomerFeedback, nil)
	f.agent.On("Draft", mock.Anything, mock.Anything).Return("reply", nil)
	f.agent.On("Verify", mock.Anything, mock.Anything, "reply").Return(agents.Verdict{Sendable: true}, nil)
	// The newer message (t2, queue tail) fails to send; the older one
	// still goes out.
	f.writer.On("Send", mock.Anything, second, "reply").Return(eris.New("550 no such user"))
	f.writer.On("Send", mock.Anything, first, "reply").Return(nil)

	run, err := f.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, run.Counts.Processed)
	assert.Equal(t, 2, run.Counts.Sent)
	assert.Equal(t, 1, run.Counts.DispatchFailures)

	recs, err := f.ctrl.store.ListMessages(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	failed := 0
	for _, rec := range recs {
		if rec.DispatchFailed {
			failed++
			assert.Equal(t, "t2", rec.ThreadKey)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRun_ProcessesNewestFirst(t *testing.T) {
	older := inboundMessage("t-old", "a@x.com")
	newer := inboundMessage("t-new", "b@x.com")
	f := newFixture(t, true, []*model.Message{older, newer})

	var order []string
	f.agent.On("Categorize", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			order = append(order, args.Get(1).(*model.Message).ThreadKey)
		}).
		Return(model.CategorySpam, nil)

	_, err := f.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"t-new", "t-old"}, order)
}

func TestRun_FetchErrorEndsRunEmpty(t *testing.T) {
	f := &fixture{
		reader:   new(mockReader),
		writer:   new(mockWriter),
		agent:    new(mockAgent),
		research: new(mockResearcher),
	}
	f.reader.On("FetchUnread", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, eris.New("imap: connection refused"))
	f.ctrl = New(testConfig(true), newLedger(t), f.reader, f.writer, f.agent, f.research, selfAddr)

	// An unreachable inbox means an empty queue, not a failed run; the
	// next polling cycle retries.
	run, err := f.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Zero(t, run.Counts.Processed)
	f.agent.AssertNotCalled(t, "Categorize", mock.Anything, mock.Anything)
}
