// Package config loads ragpdf.yaml into the environment and reads the
// resulting settings. Precedence is defaults, then the file, then env vars.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGPDF_CONFIG environment variable
//  3. ~/.ragpdf/config.yaml
//  4. ./ragpdf.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config mirrors ragpdf.yaml. Every leaf maps onto one environment
// variable through envMapping.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Citations CitationsConfig `yaml:"citations"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Store     StoreConfig     `yaml:"store"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ModelConfig selects and tunes the answer-writing chat model.
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // ollama, openai, azure, ark, gemini
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`

	Ollama struct {
		Host  string `yaml:"host"`
		Model string `yaml:"model"`
	} `yaml:"ollama"`
	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"openai"`
	Azure struct {
		APIKey     string `yaml:"api_key"`
		Endpoint   string `yaml:"endpoint"`
		Deployment string `yaml:"deployment"`
		APIVersion string `yaml:"api_version"`
	} `yaml:"azure"`
	Ark struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"ark"`
	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Retries    int    `yaml:"retries"`
}

// IndexConfig picks the vector backend and the default namespace.
type IndexConfig struct {
	Backend   string `yaml:"backend"` // memory or qdrant
	Dir       string `yaml:"dir"`
	Namespace string `yaml:"namespace"`
}

type ChunkingConfig struct {
	Size      int `yaml:"size"`
	Overlap   int `yaml:"overlap"`
	BatchSize int `yaml:"batch_size"`
}

type RetrievalConfig struct {
	TopK             int `yaml:"top_k"`
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// CitationsConfig maps a source file name to the correction added to its
// one-based page number, e.g. {"Biology.pdf": -40}.
type CitationsConfig struct {
	PageOffsets map[string]int `yaml:"page_offsets"`
}

type QdrantConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"` // gRPC
	CollectionPrefix string `yaml:"collection_prefix"`
	APIKey           string `yaml:"api_key"`
	TLS              bool   `yaml:"tls"`
}

type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
}

// StoreConfig locates the SQLite database; "disabled" turns it off.
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_RETRIES", func(c *Config) string { return intStr(c.Embedding.Retries) }},
	{"RAGPDF_INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"RAGPDF_INDEX_DIR", func(c *Config) string { return c.Index.Dir }},
	{"RAGPDF_NAMESPACE", func(c *Config) string { return c.Index.Namespace }},
	{"RAGPDF_CHUNK_SIZE", func(c *Config) string { return intStr(c.Chunking.Size) }},
	{"RAGPDF_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Chunking.Overlap) }},
	{"RAGPDF_BATCH_SIZE", func(c *Config) string { return intStr(c.Chunking.BatchSize) }},
	{"RAGPDF_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RAGPDF_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Retrieval.MaxContextTokens) }},
	{"RAGPDF_PAGE_OFFSETS", func(c *Config) string { return FormatPageOffsets(c.Citations.PageOffsets) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION_PREFIX", func(c *Config) string { return c.Qdrant.CollectionPrefix }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"RAGPDF_HOST", func(c *Config) string { return c.Server.Host }},
	{"RAGPDF_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RAGPDF_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LOG_SOURCE", func(c *Config) string { return boolStr(c.Logging.Source) }},
	{"RAGPDF_DB", func(c *Config) string { return c.Store.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load resolves the config file, decodes it and exports every non-empty
// value whose env var is not already set. It returns the loaded path, or ""
// when no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no config file, using environment only")
		return "", nil
	}

	cfg, err := decode(path)
	if err != nil {
		return "", err
	}

	var applied, shadowed int
	for _, m := range envMapping {
		v := m.value(cfg)
		switch {
		case v == "":
		case os.Getenv(m.envKey) != "":
			shadowed++
		default:
			if err := os.Setenv(m.envKey, v); err != nil {
				return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
			}
			applied++
		}
	}

	log.Info("config: loaded",
		slog.String("path", path),
		slog.Int("applied", applied),
		slog.Int("shadowed_by_env", shadowed),
	)
	return path, nil
}

func decode(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// resolveConfigPath returns the first candidate that exists. A missing
// explicit path is an error; the implicit candidates are optional.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: --config %s: %w", explicit, err)
		}
		return explicit, nil
	}

	candidates := []string{os.Getenv("RAGPDF_CONFIG")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".ragpdf", "config.yaml"))
	}
	candidates = append(candidates, "ragpdf.yaml")

	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str formats v without trailing zeros; zero formats as "".
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
