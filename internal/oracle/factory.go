package oracle

import (
	"fmt"
	"log/slog"

	"lia/internal/config"
	"lia/internal/domain"
)

// NewPlanner builds the planner named by the config. The HTTP client is
// shared between instances built from the same call.
func NewPlanner(cfg config.OracleConfig, logger *slog.Logger) (domain.Planner, error) {
	client := sharedHTTPClient(defaultHTTPTimeout)
	switch cfg.Provider {
	case "ollama", "":
		return NewOllama(OllamaConfig{
			APIBase: cfg.APIBase,
			Model:   cfg.Model,
			Client:  client,
			Logger:  logger,
		}), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.APIKey,
			APIBase: cfg.APIBase,
			Model:   cfg.Model,
			Client:  client,
			Logger:  logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s", cfg.Provider)
	}
}

// NewEmbedderFromConfig returns nil when embeddings are disabled; callers
// treat a nil embedder as "keyword search only".
func NewEmbedderFromConfig(cfg config.EmbeddingConfig, logger *slog.Logger) *Embedder {
	if !cfg.Enabled {
		return nil
	}
	return NewEmbedder(EmbedderConfig{
		APIBase: cfg.APIBase,
		Model:   cfg.Model,
		Logger:  logger,
	})
}
