package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/autoreply/internal/resilience"
	"github.com/sells-group/autoreply/pkg/anthropic"
)

const researchSystemPrompt = `You answer knowledge base queries for a company support mailbox. You are given a query and excerpts from the product documentation. Answer the query using only the excerpts.

If the excerpts do not contain the information needed, the query is unanswerable. Never guess.

Respond with a valid JSON object: {"answerable": <true|false>, "answer": "<the answer, empty when unanswerable>"}`

const researchUserPrompt = `Query: %s

Documentation excerpts:
%s`

// Researcher answers queries against the knowledge base. It retrieves
// candidate documents by full-text search and asks the model to compose
// an answer strictly from them.
type Researcher struct {
	kb     *KB
	client anthropic.Client
	model  string
	retry  resilience.RetryConfig
}

// NewResearcher creates a researcher over an open knowledge base.
func NewResearcher(kb *KB, client anthropic.Client, model string) *Researcher {
	return &Researcher{
		kb:     kb,
		client: client,
		model:  model,
		retry:  resilience.DefaultRetryConfig(),
	}
}

// Lookup answers one query. ok is false when the knowledge base cannot
// answer it: either retrieval found nothing or the model judged the
// excerpts insufficient. The error return is reserved for transport
// failures.
func (r *Researcher) Lookup(ctx context.Context, query string) (answer string, ok bool, err error) {
	docs, err := r.kb.Search(ctx, query)
	if err != nil {
		return "", false, err
	}
	if len(docs) == 0 {
		zap.L().Debug("knowledge: no documents matched query",
			zap.String("query", query),
		)
		return "", false, nil
	}

	var excerpts strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&excerpts, "## %s\n%s\n\n", d.Title, d.Content)
	}

	text, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (string, error) {
		resp, err := r.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     r.model,
			MaxTokens: 1024,
			System:    anthropic.CachedSystemBlocks(researchSystemPrompt),
			Messages: []anthropic.Message{
				{Role: "user", Content: fmt.Sprintf(researchUserPrompt, query, excerpts.String())},
			},
		})
		if err != nil {
			return "", err
		}
		resp.Usage.Log(r.model, "researcher")
		return resp.Text(), nil
	})
	if err != nil {
		return "", false, eris.Wrap(err, "knowledge: lookup")
	}

	var result struct {
		Answerable bool   `json:"answerable"`
		Answer     string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		return "", false, eris.Wrap(err, "knowledge: lookup: parse response")
	}
	if !result.Answerable || strings.TrimSpace(result.Answer) == "" {
		return "", false, nil
	}
	return result.Answer, true, nil
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

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

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
