// Package agents holds the model-backed capabilities of the reply
// pipeline: categorizing inbound mail, building knowledge base queries,
// drafting replies, and proofreading drafts.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/autoreply/internal/config"
	"github.com/sells-group/autoreply/internal/model"
	"github.com/sells-group/autoreply/internal/resilience"
	"github.com/sells-group/autoreply/pkg/anthropic"
)

// Verdict is the proofreader's judgement of a draft.
type Verdict struct {
	Sendable bool
	Feedback string
}

// Revision is one draft/feedback exchange from an earlier writing round.
type Revision struct {
	Draft    string
	Feedback string
}

// Note is one answered knowledge base query. The query travels with its
// answer so the writer sees which question each answer addresses.
type Note struct {
	Query  string
	Answer string
}

// DraftRequest carries everything the writer needs for one draft.
type DraftRequest struct {
	Message *model.Message
	// Notes are the answered research queries, one per query.
	Notes []Note
	// History holds prior rejected drafts with the proofreader feedback
	// each one received, oldest first.
	History []Revision
}

// Agents runs the four model-backed capabilities against one Anthropic
// client. All calls share a retry policy and a circuit breaker so a
// provider outage fails the run fast instead of grinding through every
// queued message.
type Agents struct {
	client     anthropic.Client
	cfg        config.AnthropicConfig
	maxQueries int

	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// New creates the agent set.
func New(client anthropic.Client, cfg config.AnthropicConfig, maxQueries int) *Agents {
	if maxQueries <= 0 {
		maxQueries = 3
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = func(attempt int, err error) {
		zap.L().Warn("agents: retrying model call",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return &Agents{
		client:     client,
		cfg:        cfg,
		maxQueries: maxQueries,
		retry:      retry,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("agents: circuit state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

// Categorize classifies an inbound message. Responses that name a
// category outside the known set pass through unchanged; routing treats
// them like product mail so a misbehaving model never drops a customer
// message.
func (a *Agents) Categorize(ctx context.Context, msg *model.Message) (model.Category, error) {
	prompt := fmt.Sprintf(categorizeUserPrompt, msg.Sender, msg.Subject, msg.Body)

	text, err := a.complete(ctx, "categorize", categorizeSystemPrompt, prompt, 64)
	if err != nil {
		return "", eris.Wrap(err, "agents: categorize")
	}

	var result struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		return "", eris.Wrap(err, "agents: categorize: parse response")
	}

	cat := model.ParseCategory(result.Category)
	zap.L().Debug("agents: categorized message",
		zap.String("thread_key", msg.ThreadKey),
		zap.String("category", string(cat)),
	)
	return cat, nil
}

// BuildQueries produces knowledge base search queries for a product
// related message, capped at the configured maximum.
func (a *Agents) BuildQueries(ctx context.Context, msg *model.Message) ([]string, error) {
	system := fmt.Sprintf(queriesSystemPrompt, a.maxQueries)
	prompt := fmt.Sprintf(queriesUserPrompt, msg.Subject, msg.Body)

	text, err := a.complete(ctx, "queries", system, prompt, 512)
	if err != nil {
		return nil, eris.Wrap(err, "agents: build queries")
	}

	var result struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		return nil, eris.Wrap(err, "agents: build queries: parse response")
	}

	queries := make([]string, 0, a.maxQueries)
	for _, q := range result.Queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) == a.maxQueries {
			break
		}
	}
	return queries, nil
}

// Draft writes a reply to the message. Research notes and any prior
// draft/feedback rounds are folded into the conversation so the writer
// revises rather than starting over.
func (a *Agents) Draft(ctx context.Context, req DraftRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer email:\nFrom: %s\nSubject: %s\n\n%s\n", req.Message.Sender, req.Message.Subject, req.Message.Body)

	if len(req.Notes) > 0 {
		b.WriteString("\nResearch notes:\n\n")
		for _, note := range req.Notes {
			fmt.Fprintf(&b, "%s\n%s\n\n", note.Query, note.Answer)
		}
	}

	for i, rev := range req.History {
		fmt.Fprintf(&b, "\n**Draft %d:**\n%s\n", i+1, rev.Draft)
		fmt.Fprintf(&b, "\n**Proofreader Feedback:**\n%s\n", rev.Feedback)
	}
	if len(req.History) > 0 {
		fmt.Fprintf(&b, "\nWrite draft %d, addressing all of the feedback above.\n", len(req.History)+1)
	}

	text, err := a.complete(ctx, "writer", writerSystemPrompt, b.String(), a.maxTokens())
	if err != nil {
		return "", eris.Wrap(err, "agents: draft")
	}

	var result struct {
		Draft string `json:"draft"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		return "", eris.Wrap(err, "agents: draft: parse response")
	}
	if strings.TrimSpace(result.Draft) == "" {
		return "", eris.New("agents: draft: empty draft in response")
	}
	return result.Draft, nil
}

// Verify asks the proofreader to judge a draft against the customer's
// email. A malformed response counts as not sendable so a broken model
// can never push an unchecked draft out.
func (a *Agents) Verify(ctx context.Context, msg *model.Message, draft string) (Verdict, error) {
	prompt := fmt.Sprintf(proofreaderUserPrompt, msg.Sender, msg.Subject, msg.Body, draft)

	text, err := a.complete(ctx, "proofreader", proofreaderSystemPrompt, prompt, 512)
	if err != nil {
		return Verdict{}, eris.Wrap(err, "agents: verify")
	}

	var result struct {
		Sendable bool   `json:"sendable"`
		Feedback string `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		return Verdict{Sendable: false, Feedback: "The draft could not be reviewed. Rewrite it more plainly."}, nil
	}
	return Verdict{Sendable: result.Sendable, Feedback: result.Feedback}, nil
}

// complete runs one message exchange through the circuit breaker and
// retry policy and returns the text of the response.
func (a *Agents) complete(ctx context.Context, agent, system, user string, maxTokens int64) (string, error) {
	return resilience.DoVal(ctx, a.retry, func(ctx context.Context) (string, error) {
		var text string
		err := a.breaker.Execute(ctx, func(ctx context.Context) error {
			resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     a.cfg.Model,
				MaxTokens: maxTokens,
				System:    anthropic.CachedSystemBlocks(system),
				Messages: []anthropic.Message{
					{Role: "user", Content: user},
				},
			})
			if err != nil {
				return err
			}
			resp.Usage.Log(a.cfg.Model, agent)
			text = resp.Text()
			return nil
		})
		return text, err
	})
}

func (a *Agents) maxTokens() int64 {
	if a.cfg.MaxTokens > 0 {
		return a.cfg.MaxTokens
	}
	return 2048
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
