package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768
)

// Settings is the resolved embedding configuration.
type Settings struct {
	// Backend is one of ollama, openai, azure, gemini.
	Backend string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// Endpoint is the backend base URL.
	Endpoint string
	// APIKey authenticates against hosted backends.
	APIKey string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// Dimensions requests a specific vector length (0 = model default).
	Dimensions int
	// Retries is the number of extra attempts on transient failures.
	Retries int
}

// DefaultDimensions returns the default embedding vector size for the given
// backend name. EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "gemini":
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// SettingsFromEnv resolves Settings using cascading defaults that inherit
// from the chat provider configuration when embedding-specific overrides are
// not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER, else ollama
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY overrides the inherited API key
//  5. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS overrides the default dimensions
//  7. EMBEDDING_RETRIES overrides the retry budget (default 3)
func SettingsFromEnv() Settings {
	s := Settings{
		Backend: getEnv("EMBEDDING_PROVIDER"),
		Model:   getEnv("EMBEDDING_MODEL"),
		APIKey:  getEnv("EMBEDDING_API_KEY"),
		Retries: getEnvInt("EMBEDDING_RETRIES", DefaultRetries),
	}
	if s.Backend == "" {
		s.Backend = getEnvOrDefault("MODEL_PROVIDER", "ollama")
	}
	endpoint := getEnv("EMBEDDING_ENDPOINT")

	switch s.Backend {
	case "ollama":
		s.Endpoint = firstNonEmpty(endpoint, getEnv("OLLAMA_HOST"), "http://localhost:11434")
		s.Model = firstNonEmpty(s.Model, defaultOllamaModel)
	case "openai":
		s.Endpoint = firstNonEmpty(endpoint, "https://api.openai.com/v1")
		s.APIKey = firstNonEmpty(s.APIKey, getEnv("OPENAI_API_KEY"))
		s.Model = firstNonEmpty(s.Model, defaultOpenAIModel)
		s.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions)
	case "azure":
		s.Endpoint = firstNonEmpty(endpoint, getEnv("AZURE_OPENAI_ENDPOINT"))
		s.APIKey = firstNonEmpty(s.APIKey, getEnv("AZURE_OPENAI_API_KEY"))
		s.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
		s.Model = firstNonEmpty(s.Model, defaultOpenAIModel)
		s.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions)
	case "gemini":
		s.APIKey = firstNonEmpty(s.APIKey, getEnv("GOOGLE_API_KEY"))
		s.Model = firstNonEmpty(s.Model, defaultGeminiModel)
		s.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", 0)
	}
	return s
}

// Validate reports configuration that is clearly broken.
func (s Settings) Validate() error {
	switch s.Backend {
	case "ollama":
		return nil
	case "openai":
		if s.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if s.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if s.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "gemini":
		if s.APIKey == "" {
			return fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
	default:
		return fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, gemini)", s.Backend)
	}
	return nil
}

// New constructs the backend embedder described by s, wrapped in [Retrying].
func New(ctx context.Context, s Settings) (rag.Embedder, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var base rag.Embedder
	switch s.Backend {
	case "ollama":
		base = NewOllamaEmbedder(&OllamaConfig{Host: s.Endpoint, Model: s.Model})
	case "openai":
		base = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    s.Endpoint,
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		})
	case "azure":
		base = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    s.Endpoint + "/openai",
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
			Azure:      true,
			APIVersion: s.APIVersion,
		})
	case "gemini":
		g, err := NewGeminiEmbedder(ctx, &GeminiConfig{APIKey: s.APIKey, Model: s.Model, Dimensions: s.Dimensions})
		if err != nil {
			return nil, err
		}
		base = g
	}
	return WithRetry(base, s.Retries, 0), nil
}

// NewFromEnv is New(ctx, SettingsFromEnv()).
func NewFromEnv(ctx context.Context) (rag.Embedder, error) {
	return New(ctx, SettingsFromEnv())
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
