package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/tally/internal/failure"
	"github.com/JaimeStill/tally/internal/metrics"
	"github.com/JaimeStill/tally/pkg/retry"
)

// Resilient wraps an Embedder and Reasoner with retry, metrics and error
// classification. Any error it returns wraps failure.ExternalUnavailable
// unless the input itself was invalid.
type Resilient struct {
	embedder Embedder
	reasoner Reasoner
	policy   retry.Policy
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewResilient wraps embedder and reasoner with policy.
func NewResilient(
	embedder Embedder,
	reasoner Reasoner,
	policy retry.Policy,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Resilient {
	return &Resilient{
		embedder: embedder,
		reasoner: reasoner,
		policy:   policy,
		metrics:  m,
		logger:   logger,
	}
}

// Embed calls the wrapped Embedder with retry.
func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := retry.Do(ctx, r.policy, func(ctx context.Context) ([]float32, error) {
		v, err := r.embedder.Embed(ctx, text)
		return v, classify(err)
	}, r.notify(ProviderEmbedding))
	return v, r.finish(ProviderEmbedding, err)
}

// Explain calls the wrapped Reasoner with retry.
func (r *Resilient) Explain(ctx context.Context, e Explanation) (string, error) {
	s, err := retry.Do(ctx, r.policy, func(ctx context.Context) (string, error) {
		s, err := r.reasoner.Explain(ctx, e)
		return s, classify(err)
	}, r.notify(ProviderReasoning))
	return s, r.finish(ProviderReasoning, err)
}

func (r *Resilient) notify(provider string) retry.Notify {
	return func(attempt int, err error, wait time.Duration) {
		r.logger.Warn(
			"provider call failed, retrying",
			"provider", provider,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}
}

func (r *Resilient) finish(provider string, err error) error {
	if errors.Is(err, failure.Invalid) {
		return err
	}
	r.metrics.ExternalCall(provider, err)
	if err == nil {
		return nil
	}
	if errors.Is(err, failure.ExternalUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", provider, failure.ExternalUnavailable, err)
}

// classify marks errors that retrying cannot fix as permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDisabled) || errors.Is(err, failure.Invalid) {
		return retry.Permanent(err)
	}
	return err
}
