package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaEmbedder calls a local Ollama's batch /api/embed endpoint. Safe for
// concurrent use.
type OllamaEmbedder struct {
	host   string // no trailing slash
	model  string
	client *http.Client
}

type OllamaConfig struct {
	Host  string // e.g. http://localhost:11434
	Model string // e.g. nomic-embed-text
	// Timeout bounds one batch request. Zero means 60s.
	Timeout time.Duration
}


func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaEmbedder{
		host:   strings.TrimRight(cfg.Host, "/"),
		model:  cfg.Model,
		client: &http.Client{Timeout: timeout},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed returns one vector per text, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result ollamaEmbedResponse
	err := postJSON(ctx, e.client, e.host+"/api/embed", nil,
		ollamaEmbedRequest{Model: e.model, Input: texts}, &result)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			se.Message = result.Error
		}
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}
