package providers

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/pkg/formatting"
)

// GenAI calls Gemini (API key) or Vertex AI (project and location).
type GenAI struct {
	client         *genai.Client
	embeddingModel string
	reasoningModel string
	dimensions     int32
}

// NewGenAI creates a GenAI client for the configured backend.
func NewGenAI(ctx context.Context, cfg *config.ProvidersConfig) (*GenAI, error) {
	cc := &genai.ClientConfig{}
	switch cfg.Backend {
	case config.BackendVertex:
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	default:
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAI{
		client:         client,
		embeddingModel: cfg.EmbeddingModel,
		reasoningModel: cfg.ReasoningModel,
		dimensions:     int32(cfg.Dimensions),
	}, nil
}

// Embed returns the embedding of text.
func (g *GenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	ec := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}
	if g.dimensions > 0 {
		ec.OutputDimensionality = genai.Ptr(g.dimensions)
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), ec)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embed content: empty embedding")
	}
	return resp.Embeddings[0].Values, nil
}

// Explain generates a short explanation under the given instructions.
func (g *GenAI) Explain(ctx context.Context, e Explanation) (string, error) {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.2),
	}
	if e.Instructions != "" {
		gc.SystemInstruction = genai.NewContentFromText(e.Instructions, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.reasoningModel, genai.Text(e.Subject), gc)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := formatting.Unfence(resp.Text())
	if text == "" {
		return "", fmt.Errorf("generate content: empty response from model")
	}
	return text, nil
}
