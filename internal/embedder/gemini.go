package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEmbedder implements rag.Embedder with the Gemini EmbedContent API.
type GeminiEmbedder struct {
	// models is the genai models service.
	models *genai.Models
	// model is the embedding model name (e.g. "text-embedding-004").
	model string
	// config carries the optional output dimensionality.
	config *genai.EmbedContentConfig
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Google AI Studio key.
	APIKey string
	// Model is the embedding model name.
	Model string
	// Dimensions truncates the output vector when > 0.
	Dimensions int
}

// NewGeminiEmbedder constructs a GeminiEmbedder.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: create client: %w", err)
	}
	e := &GeminiEmbedder{models: client.Models, model: cfg.Model}
	if cfg.Dimensions > 0 {
		dims := int32(cfg.Dimensions)
		e.config = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}
	return e, nil
}

// Embed converts a batch of texts into their corresponding embeddings.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := e.models.EmbedContent(ctx, e.model, contents, e.config)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embedder: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("gemini embedder: embedding %d missing", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
