// Package tracing wires Langfuse tracing into the eino callback system so
// every answer generation is recorded as a trace.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/aramishf/RAG-PDF-Expert/internal/version"
)

// defaultHost is the Langfuse endpoint used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Config holds the Langfuse credentials.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func ConfigFromEnv() Config {
	return Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup registers a global Langfuse callback handler named after service
// when cfg is enabled. The returned flush function must be called before
// process exit so buffered traces are sent; it is a no-op when tracing is
// disabled.
func Setup(cfg Config, service string) (flush func(), enabled bool) {
	if !cfg.Enabled() {
		return func() {}, false
	}
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      service,
		Release:   version.Version,
	})
	callbacks.AppendGlobalHandlers(handler)

	return flusher, true
}
