package commands

import (
	"fmt"
	"log/slog"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/assistant"
	"github.com/rolobot-ai/rolobot/pkg/rolobot/recall"
	"github.com/rolobot-ai/rolobot/pkg/rolobot/search"
	"github.com/rolobot-ai/rolobot/pkg/rolobot/store"
)

// service bundles the wired subsystems for the chat and serve commands.
type service struct {
	cfg          *assistant.Config
	logger       *slog.Logger
	db           *store.SQLite
	orchestrator *assistant.Orchestrator
	scheduler    *recall.Scheduler
}

// buildService wires storage, the model client and all subsystems from
// config. The caller owns db.Close.
func buildService(cfg *assistant.Config, logger *slog.Logger, sender recall.Sender) (*service, error) {
	assistant.ResolveAPIKey(cfg, logger)
	if cfg.API.APIKey == "" {
		return nil, fmt.Errorf("no API key configured; run 'rolobot secret set' or set ROLOBOT_API_KEY")
	}

	db, err := store.OpenSQLite(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	vectors, err := store.NewQdrantIndex(cfg.Qdrant, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect vector index: %w", err)
	}

	prompts, err := assistant.LoadPrompts(cfg.Prompts, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	llm := assistant.NewLLMClient(cfg.API, logger)

	searcher := search.New(db, db, vectors, llm, search.Options{
		Limit:              cfg.Search.Limit,
		VectorThreshold:    cfg.Search.VectorThreshold,
		MinRerankQueryLen:  cfg.Search.MinRerankQueryLen,
		OrgFreeSearchLimit: cfg.Search.OrgFreeSearchLimit,
		RerankPrompt:       prompts.Get(assistant.PromptRerank),
	}, logger)

	gate := assistant.NewConfirmStore(logger)
	orchestrator := assistant.NewOrchestrator(
		llm, assistant.NewExtractor(llm, prompts, logger), searcher,
		db, db, db, vectors, gate, prompts, cfg.Agent, logger)

	scheduler := recall.NewScheduler(db, db, llm, sender, recall.Options{
		WindowMinutes: cfg.Recall.WindowMinutes,
		PoolSize:      cfg.Recall.PoolSize,
		BatchSize:     cfg.Recall.BatchSize,
		SendDelay:     cfg.Recall.SendDelay(),
		Prompt:        prompts.Get(assistant.PromptRecall),
	}, logger)

	return &service{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		orchestrator: orchestrator,
		scheduler:    scheduler,
	}, nil
}
