// Package provider constructs the generative model behind question answering.
// Chat backends are eino components selected at runtime; [Generator] adapts
// any of them to the prompt-in, answer-out contract of rag.Generator.
// Supported backends: Ollama, OpenAI, Azure OpenAI, Volcengine Ark, Google Gemini.
package provider

import (
	"errors"
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcengine Ark model runtime.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is the Ollama base URL.
	Host string
	// Model is the chat model tag (e.g. "llama3").
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is the bearer token.
	APIKey string
	// Model is the chat model name (e.g. "gpt-4o").
	Model string
	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is the api-key header value.
	APIKey string
	// Endpoint is the resource URL (https://<resource>.openai.azure.com).
	Endpoint string
	// Deployment is the chat deployment name.
	Deployment string
	// APIVersion is the REST API version.
	APIVersion string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	// APIKey is the Ark API key.
	APIKey string
	// Model is the endpoint/model ID.
	Model string
	// BaseURL overrides the regional endpoint.
	BaseURL string
}

// ProviderGemini holds Gemini settings.
type ProviderGemini struct {
	// APIKey is the Google AI Studio key.
	APIKey string
	// Model is the Gemini model name.
	Model string
}

// SharedTuning holds generation parameters common to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per answer.
	MaxTokens int
	// Temperature controls response randomness (0.0 to 1.0).
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the block matching
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Gemini      ProviderGemini

	// Tuning applies to every backend that supports it.
	Tuning SharedTuning
}

// Validate checks the settings for the selected backend, naming the env var
// that is missing so operators can fix it directly.
func (c *Config) Validate() error {
	var missing []string
	need := func(val, env string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, env)
		}
	}

	switch c.Backend {
	case BackendOllama:
		need(c.Ollama.Host, "OLLAMA_HOST")
		need(c.Ollama.Model, "OLLAMA_MODEL")
	case BackendOpenAI:
		need(c.OpenAI.APIKey, "OPENAI_API_KEY")
		need(c.OpenAI.Model, "OPENAI_MODEL")
	case BackendAzure:
		need(c.AzureOpenAI.APIKey, "AZURE_OPENAI_API_KEY")
		need(c.AzureOpenAI.Endpoint, "AZURE_OPENAI_ENDPOINT")
		need(c.AzureOpenAI.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	case BackendArk:
		need(c.Ark.APIKey, "ARK_API_KEY")
		need(c.Ark.Model, "ARK_MODEL")
	case BackendGemini:
		need(c.Gemini.APIKey, "GOOGLE_API_KEY")
		need(c.Gemini.Model, "GEMINI_MODEL")
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: ollama, openai, azure, ark, gemini)", c.Backend)
	}

	if len(missing) > 0 {
		return errors.New("provider: " + string(c.Backend) + " backend requires " + strings.Join(missing, ", "))
	}
	if c.Tuning.Temperature < 0 || c.Tuning.Temperature > 2 {
		return fmt.Errorf("provider: MODEL_TEMPERATURE %.2f out of range [0, 2]", c.Tuning.Temperature)
	}
	return nil
}

// isAzureReasoningModel reports whether an Azure deployment name belongs to
// the o-series or codex reasoning families, which reject temperature and
// max_tokens.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
