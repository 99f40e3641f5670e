package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/autoreply/internal/agents"
	"github.com/sells-group/autoreply/internal/knowledge"
	"github.com/sells-group/autoreply/internal/mailbox"
	"github.com/sells-group/autoreply/internal/pipeline"
	"github.com/sells-group/autoreply/internal/store"
	anthropicpkg "github.com/sells-group/autoreply/pkg/anthropic"
)

// env bundles the wired pipeline with the resources it owns.
type env struct {
	Controller *pipeline.Controller
	Store      store.Store
	kb         *knowledge.KB
}

func (e *env) Close() {
	if e.kb != nil {
		e.kb.Close()
	}
	if e.Store != nil {
		e.Store.Close()
	}
}

// initPipeline wires the controller from config: ledger, knowledge
// base, Anthropic client, and the IMAP/SMTP mailbox.
func initPipeline(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	kb, err := knowledge.Open(cfg.Knowledge.DatabasePath, cfg.Knowledge.MaxDocs)
	if err != nil {
		st.Close()
		return nil, err
	}

	aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key,
		anthropicpkg.WithRateLimit(cfg.Anthropic.RequestsPerSec),
	)

	agent := agents.New(aiClient, cfg.Anthropic, cfg.Pipeline.MaxQueries)
	researcher := knowledge.NewResearcher(kb, aiClient, cfg.Anthropic.Model)
	mbox := mailbox.NewClient(cfg.Mailbox)

	ctrl := pipeline.New(cfg, st, mbox, mbox, agent, researcher, mbox.Address())

	return &env{Controller: ctrl, Store: st, kb: kb}, nil
}
