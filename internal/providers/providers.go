// Package providers adapts the external embedding and reasoning services.
// Every call leaves the process, so callers must never hold a transaction
// across one. Failures surface as failure.ExternalUnavailable and are
// expected to degrade the result rather than abort the caller.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/failure"
	"github.com/JaimeStill/tally/internal/metrics"
	"github.com/JaimeStill/tally/pkg/retry"
)

// Provider labels used for metrics and logs.
const (
	ProviderEmbedding = "embedding"
	ProviderReasoning = "reasoning"
)

var (
	ErrDisabled  = fmt.Errorf("providers disabled: %w", failure.ExternalUnavailable)
	ErrEmptyText = fmt.Errorf("text to embed is empty: %w", failure.Invalid)
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Explanation is a single reasoning request: the system instructions in
// effect for the stage and the subject to reason about.
type Explanation struct {
	Instructions string
	Subject      string
}

// Reasoner produces a short natural-language explanation.
type Reasoner interface {
	Explain(ctx context.Context, e Explanation) (string, error)
}

// Set bundles the configured providers.
type Set struct {
	Embedder Embedder
	Reasoner Reasoner
}

// New builds the provider set from cfg. When providers are disabled both
// members return ErrDisabled. Otherwise calls go through a GenAI client with
// retry and metrics, and embeddings are cached for cfg.CacheTTL.
func New(ctx context.Context, cfg *config.ProvidersConfig, m *metrics.Metrics, logger *slog.Logger) (*Set, error) {
	logger = logger.With("system", "providers")

	var (
		embedder Embedder = Disabled{}
		reasoner Reasoner = Disabled{}
	)

	if cfg.Enabled {
		client, err := NewGenAI(ctx, cfg)
		if err != nil {
			return nil, err
		}
		embedder = client
		reasoner = client
		logger.Info(
			"providers enabled",
			"backend", cfg.Backend,
			"embedding_model", cfg.EmbeddingModel,
			"reasoning_model", cfg.ReasoningModel,
		)
	} else {
		logger.Info("providers disabled; classification runs without embeddings")
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = uint64(cfg.MaxRetries)
	policy.AttemptTimeout = cfg.TimeoutDuration()

	resilient := NewResilient(embedder, reasoner, policy, m, logger)

	return &Set{
		Embedder: NewCached(resilient, cfg.EmbeddingModel, cfg.CacheTTLDuration()),
		Reasoner: resilient,
	}, nil
}

// Disabled satisfies Embedder and Reasoner by always failing with ErrDisabled.
type Disabled struct{}

// Embed returns ErrDisabled.
func (Disabled) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrDisabled
}

// Explain returns ErrDisabled.
func (Disabled) Explain(context.Context, Explanation) (string, error) {
	return "", ErrDisabled
}

// EmbeddingText renders an account the same way for every corpus so that
// client accounts and golden mappings are embedded comparably.
func EmbeddingText(accountName, description, vendor string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{accountName, description, vendor} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " | ")
}
