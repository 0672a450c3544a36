package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
)

// Defaults favour short, grounded answers: a low temperature keeps the
// model close to the supplied passages.
const (
	defaultOllamaHost   = "http://localhost:11434"
	defaultOllamaModel  = "llama3.1"
	defaultOpenAIModel  = "gpt-4o-mini"
	defaultAzureVersion = "2024-10-21"
	defaultGeminiModel  = "gemini-2.0-flash"
	defaultMaxTokens    = 1024
	defaultTemperature  = 0.1
)

// constructor builds a chat model for one backend from a validated Config.
type constructor func(ctx context.Context, cfg *Config) (model.BaseChatModel, error)

// constructors maps each Backend to its factory.
var constructors = map[Backend]constructor{
	BackendOllama: newOllama,
	BackendOpenAI: newOpenAI,
	BackendAzure:  newAzure,
	BackendArk:    newArk,
	BackendGemini: newGemini,
}

// NewFromEnv constructs the answering chat model from environment variables.
//
//	MODEL_PROVIDER = ollama | openai | azure | ark | gemini (default: ollama)
//
//	Ollama:  OLLAMA_HOST, OLLAMA_MODEL (default: llama3.1)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini), OPENAI_BASE_URL
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION
//	Ark:     ARK_API_KEY, ARK_MODEL, ARK_BASE_URL
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-2.0-flash)
//
//	Shared:  MODEL_MAX_TOKENS (default: 1024), MODEL_TEMPERATURE (default: 0.1)
func NewFromEnv(ctx context.Context) (model.BaseChatModel, error) {
	return New(ctx, ConfigFromEnv())
}

// ConfigFromEnv resolves a Config from the environment without validating it.
// Unparseable numbers fall back to the defaults.
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendOllama))),
		Ollama: ProviderOllama{
			Host:  getEnvOrDefault("OLLAMA_HOST", defaultOllamaHost),
			Model: getEnvOrDefault("OLLAMA_MODEL", defaultOllamaModel),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnvOrDefault("OPENAI_MODEL", defaultOpenAIModel),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", defaultAzureVersion),
		},
		Ark: ProviderArk{
			APIKey:  os.Getenv("ARK_API_KEY"),
			Model:   os.Getenv("ARK_MODEL"),
			BaseURL: os.Getenv("ARK_BASE_URL"),
		},
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:  getEnvOrDefault("GEMINI_MODEL", defaultGeminiModel),
		},
		Tuning: SharedTuning{
			MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", defaultMaxTokens),
			Temperature: getEnvFloat32("MODEL_TEMPERATURE", defaultTemperature),
		},
	}
}

// New validates cfg and builds the chat model for cfg.Backend.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	build, ok := constructors[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("provider: unknown backend %q", cfg.Backend)
	}
	return build(ctx, cfg)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if i, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return i
	}
	return fallback
}

func getEnvFloat32(key string, fallback float32) float32 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 32); err == nil {
		return float32(f)
	}
	return fallback
}
