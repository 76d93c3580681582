package providers_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/failure"
	"github.com/JaimeStill/tally/internal/providers"
	"github.com/JaimeStill/tally/pkg/retry"
)

type flakyEmbedder struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (f *flakyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

type stubReasoner struct {
	text string
	err  error
}

func (s stubReasoner) Explain(context.Context, providers.Explanation) (string, error) {
	return s.text, s.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		AttemptTimeout:  time.Second,
	}
}

func TestResilientRetriesTransientFailures(t *testing.T) {
	emb := &flakyEmbedder{failures: 2, err: errors.New("503 from provider")}
	r := providers.NewResilient(emb, stubReasoner{}, fastPolicy(), nil, discard())

	v, err := r.Embed(context.Background(), "rent")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, v)
	assert.Equal(t, int32(3), emb.calls.Load())
}

func TestResilientExhaustedIsExternalUnavailable(t *testing.T) {
	emb := &flakyEmbedder{failures: 10, err: errors.New("timeout")}
	r := providers.NewResilient(emb, stubReasoner{}, fastPolicy(), nil, discard())

	_, err := r.Embed(context.Background(), "rent")
	assert.ErrorIs(t, err, failure.ExternalUnavailable)
	assert.Equal(t, int32(3), emb.calls.Load())
}

func TestResilientDisabledIsNotRetried(t *testing.T) {
	r := providers.NewResilient(providers.Disabled{}, providers.Disabled{}, fastPolicy(), nil, discard())

	_, err := r.Embed(context.Background(), "rent")
	assert.ErrorIs(t, err, providers.ErrDisabled)
	assert.ErrorIs(t, err, failure.ExternalUnavailable)

	_, err = r.Explain(context.Background(), providers.Explanation{Subject: "x"})
	assert.ErrorIs(t, err, failure.ExternalUnavailable)
}

func TestResilientExplain(t *testing.T) {
	r := providers.NewResilient(providers.Disabled{}, stubReasoner{text: "fits rent"}, fastPolicy(), nil, discard())

	s, err := r.Explain(context.Background(), providers.Explanation{Subject: "Office Rent"})
	require.NoError(t, err)
	assert.Equal(t, "fits rent", s)
}

func TestCachedEmbedder(t *testing.T) {
	emb := &flakyEmbedder{}
	c := providers.NewCached(emb, "text-embedding-004", time.Minute)

	first, err := c.Embed(context.Background(), "legal fees")
	require.NoError(t, err)

	first[0] = 999

	second, err := c.Embed(context.Background(), "legal fees")
	require.NoError(t, err)
	assert.Equal(t, float32(10), second[0])
	assert.Equal(t, int32(1), emb.calls.Load())

	_, err = c.Embed(context.Background(), "rent")
	require.NoError(t, err)
	assert.Equal(t, int32(2), emb.calls.Load())
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	emb := &flakyEmbedder{failures: 1, err: errors.New("down")}
	c := providers.NewCached(emb, "m", time.Minute)

	_, err := c.Embed(context.Background(), "rent")
	require.Error(t, err)

	_, err = c.Embed(context.Background(), "rent")
	require.NoError(t, err)
	assert.Equal(t, int32(2), emb.calls.Load())
}

func TestNewDisabled(t *testing.T) {
	cfg := &config.ProvidersConfig{
		EmbeddingModel: "text-embedding-004",
		Timeout:        "1s",
		MaxRetries:     1,
		CacheTTL:       "1m",
	}

	set, err := providers.New(context.Background(), cfg, nil, discard())
	require.NoError(t, err)

	_, err = set.Embedder.Embed(context.Background(), "rent")
	assert.ErrorIs(t, err, providers.ErrDisabled)
}

func TestEmbeddingText(t *testing.T) {
	assert.Equal(t, "Misc Consulting Fee | Acme Corp", providers.EmbeddingText("Misc Consulting Fee ", "", "Acme Corp"))
	assert.Equal(t, "Rent | Office lease | Landlord LLC", providers.EmbeddingText("Rent", "Office lease", "Landlord LLC"))
	assert.Equal(t, "", providers.EmbeddingText(" ", "", ""))
}
