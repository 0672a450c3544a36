package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OpenAIEmbedder calls the OpenAI /embeddings API, or an Azure OpenAI
// deployment when configured for Azure. Safe for concurrent use.
type OpenAIEmbedder struct {
	endpoint   string
	headers    map[string]string
	model      string
	dimensions int // 0 keeps the model default
	client     *http.Client
}

// OpenAIConfig configures NewOpenAIEmbedder. With Azure set, BaseURL is
// "https://<resource>.openai.azure.com/openai", Model doubles as the
// deployment name and APIVersion is sent as api-version.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Azure      bool
	APIVersion string
	// Timeout bounds one batch request. Zero means 30s.
	Timeout time.Duration
}

func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	e := &OpenAIEmbedder{
		endpoint:   base + "/embeddings",
		headers:    map[string]string{"Authorization": "Bearer " + cfg.APIKey},
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.Azure {
		e.endpoint = base + "/deployments/" + url.PathEscape(cfg.Model) +
			"/embeddings?api-version=" + url.QueryEscape(cfg.APIVersion)
		e.headers = map[string]string{"api-key": cfg.APIKey}
	}
	if e.client.Timeout <= 0 {
		e.client.Timeout = 30 * time.Second
	}
	return e
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns one vector per text, reordered by the response's index field.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result openaiEmbedResponse
	body := openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: e.dimensions}
	if err := postJSON(ctx, e.client, e.endpoint, e.headers, body, &result); err != nil {
		var se *statusError
		if errors.As(err, &se) && result.Error != nil {
			se.Message = result.Error.Message
		}
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	// The API may return data out of order; place by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embedder: index %d out of range [0, %d)", d.Index, len(texts))
		}
		if embeddings[d.Index] != nil {
			return nil, fmt.Errorf("openai embedder: duplicate index %d", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}
