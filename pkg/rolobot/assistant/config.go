// Package assistant – config.go defines all configuration structures for the
// rolobot service.
package assistant

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/store"
)

// Config holds all service configuration.
type Config struct {
	// API configures the model provider (OpenAI-compatible).
	API APIConfig `yaml:"api"`

	// Store is the SQLite database file path.
	Store StoreConfig `yaml:"store"`

	// Qdrant configures the vector index.
	Qdrant store.QdrantConfig `yaml:"qdrant"`

	// Agent configures the orchestrator loop.
	Agent AgentConfig `yaml:"agent"`

	// Search configures hybrid retrieval.
	Search SearchConfig `yaml:"search"`

	// Recall configures the proactive recall scheduler.
	Recall RecallConfig `yaml:"recall"`

	// Prompts is the path to the prompts.yaml overrides file (optional).
	Prompts string `yaml:"prompts"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the completion/embedding provider.
type APIConfig struct {
	// BaseURL is the OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey is the provider key. Resolved from keyring/env when empty.
	APIKey string `yaml:"api_key"`

	// Model is the chat model for the orchestrator and rerank.
	Model string `yaml:"model"`

	// EmbeddingModel is the embedding model.
	EmbeddingModel string `yaml:"embedding_model"`
}

// StoreConfig configures the relational store.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// AgentConfig configures the orchestrator loop.
type AgentConfig struct {
	// MaxSteps is the tool-loop budget per utterance.
	MaxSteps int `yaml:"max_steps"`

	// ShortTextThreshold is the rune length below which a terminal text that
	// follows a successful search is replaced by the structured result list.
	ShortTextThreshold int `yaml:"short_text_threshold"`

	// HistoryDepthFree / HistoryDepthPremium are the conversation window
	// sizes per entitlement tier.
	HistoryDepthFree    int `yaml:"history_depth_free"`
	HistoryDepthPremium int `yaml:"history_depth_premium"`

	// FreeContactLimit caps how many contacts a free-tier user may create.
	FreeContactLimit int `yaml:"free_contact_limit"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// Limit is the default result cap.
	Limit int `yaml:"limit"`

	// VectorThreshold is the minimum similarity for a vector hit. Permissive
	// on purpose so paraphrase matches survive to the rerank pass.
	VectorThreshold float32 `yaml:"vector_threshold"`

	// MinRerankQueryLen skips reranking for queries shorter than this.
	MinRerankQueryLen int `yaml:"min_rerank_query_len"`

	// OrgFreeSearchLimit is how many org-scoped searches a pending member
	// may run before approval.
	OrgFreeSearchLimit int `yaml:"org_free_search_limit"`
}

// RecallConfig configures the recall scheduler.
type RecallConfig struct {
	// Enabled turns the scheduler on/off.
	Enabled bool `yaml:"enabled"`

	// WindowMinutes is the eligibility window after the configured minute.
	WindowMinutes int `yaml:"window_minutes"`

	// PoolSize is how many most-overdue contacts the sampler draws from.
	PoolSize int `yaml:"pool_size"`

	// BatchSize is how many contacts one suggestion may reference.
	BatchSize int `yaml:"batch_size"`

	// SendDelayMS is the pause between per-user sends within one tick.
	SendDelayMS int `yaml:"send_delay_ms"`
}

// SendDelay returns SendDelayMS as a duration.
func (r RecallConfig) SendDelay() time.Duration {
	return time.Duration(r.SendDelayMS) * time.Millisecond
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "https://openrouter.ai/api/v1",
			Model:          "deepseek/deepseek-chat",
			EmbeddingModel: "openai/text-embedding-3-small",
		},
		Store: StoreConfig{
			Path: "./data/rolobot.db",
		},
		Qdrant: store.QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "contacts",
			VectorSize: 1536,
		},
		Agent: AgentConfig{
			MaxSteps:            10,
			ShortTextThreshold:  80,
			HistoryDepthFree:    10,
			HistoryDepthPremium: 30,
			FreeContactLimit:    10,
		},
		Search: SearchConfig{
			Limit:              10,
			VectorThreshold:    0.15,
			MinRerankQueryLen:  3,
			OrgFreeSearchLimit: 3,
		},
		Recall: RecallConfig{
			Enabled:       true,
			WindowMinutes: 60,
			PoolSize:      20,
			BatchSize:     2,
			SendDelayMS:   500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads a yaml config file over the defaults. A missing path
// returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}
