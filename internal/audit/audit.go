// Package audit records which command ran and with what configuration, so an
// operator can reconstruct a run from its logs. Credentials appear only as
// "set" or "unset".
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// groups lists the environment recorded for every command, one slog group
// per concern.
var groups = []struct {
	name string
	keys []string
}{
	{"model", []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
		"OLLAMA_HOST", "OLLAMA_MODEL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT",
		"ARK_API_KEY", "ARK_MODEL",
		"GOOGLE_API_KEY", "GEMINI_MODEL",
	}},
	{"embedding", []string{
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS", "EMBEDDING_API_KEY",
	}},
	{"index", []string{
		"RAGPDF_INDEX_BACKEND", "RAGPDF_INDEX_DIR", "RAGPDF_NAMESPACE",
		"RAGPDF_CHUNK_SIZE", "RAGPDF_CHUNK_OVERLAP", "RAGPDF_BATCH_SIZE",
		"RAGPDF_TOP_K", "RAGPDF_PAGE_OFFSETS",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION_PREFIX", "QDRANT_API_KEY",
	}},
	{"server", []string{
		"RAGPDF_DB", "RAGPDF_API_KEY", "LOG_LEVEL", "LOG_FORMAT",
		"LANGFUSE_HOST", "LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY",
	}},
}

// LogCommandStart logs one INFO record describing the command about to run.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	attrs := make([]slog.Attr, 0, len(groups)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", displayPath(configPath)),
	)
	for _, g := range groups {
		vals := make([]any, 0, len(g.keys))
		for _, k := range g.keys {
			vals = append(vals, slog.String(k, Redact(k, os.Getenv(k))))
		}
		attrs = append(attrs, slog.Group(g.name, vals...))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// Redact returns the value as it may appear in a log line: "set" or "unset"
// for credentials, the value itself (or "unset") for everything else.
func Redact(key, value string) string {
	switch {
	case value == "":
		return "unset"
	case IsSecret(key):
		return "set"
	default:
		return value
	}
}

// IsSecret reports whether key names a credential.
func IsSecret(key string) bool {
	for _, suffix := range []string{"_API_KEY", "_SECRET_KEY", "_PUBLIC_KEY", "_TOKEN"} {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// displayPath shortens paths under the home directory to "~/...".
func displayPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if rest, ok := strings.CutPrefix(p, home+string(os.PathSeparator)); ok {
		return "~" + string(os.PathSeparator) + rest
	}
	return p
}
