package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Index backend names accepted by RAGPDF_INDEX_BACKEND.
const (
	BackendMemory = "memory"
	BackendQdrant = "qdrant"
)

// DBDisabled is the RAGPDF_DB value that turns the SQLite store off.
const DBDisabled = "disabled"

// Settings are the runtime knobs read from the environment after Load has
// applied the YAML file. Provider and embedder settings are read by their
// own packages.
type Settings struct {
	// IndexBackend is BackendMemory or BackendQdrant.
	IndexBackend string
	// IndexDir holds the memory backend's snapshots (default: ~/.ragpdf/indexes).
	IndexDir string
	// Namespace is the default namespace (default: "default").
	Namespace string
	// ChunkSize and ChunkOverlap configure the splitter (defaults: 900, 150).
	ChunkSize    int
	ChunkOverlap int
	// BatchSize is the number of chunks per embedding batch (default: 100).
	BatchSize int
	// TopK is the retrieval breadth (default: 40).
	TopK int
	// MaxContextTokens bounds the prompt; 0 leaves the default.
	MaxContextTokens int
	// PageOffsets corrects printed page numbers per source file.
	PageOffsets map[string]int
	// DBPath is the SQLite path, DBDisabled, or "" for the default location.
	DBPath string
	// Qdrant holds the connection settings used with BackendQdrant.
	Qdrant QdrantSettings
	// Host and Port are the HTTP bind address (defaults: 127.0.0.1, 8080).
	Host string
	Port int
	// APIKey is the Bearer token for the HTTP API. Empty disables auth.
	APIKey string
}

// QdrantSettings are the Qdrant connection settings.
type QdrantSettings struct {
	Host             string
	Port             int
	APIKey           string
	TLS              bool
	CollectionPrefix string
}

// FromEnv reads Settings from the environment, applying defaults and
// reporting every malformed value at once.
func FromEnv() (Settings, error) {
	var errs []error
	num := func(key string, fallback int) int {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return fallback
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s: want a non-negative integer, got %q", key, v))
			return fallback
		}
		return n
	}

	s := Settings{
		IndexBackend:     strings.ToLower(envOr("RAGPDF_INDEX_BACKEND", BackendMemory)),
		IndexDir:         os.Getenv("RAGPDF_INDEX_DIR"),
		Namespace:        envOr("RAGPDF_NAMESPACE", "default"),
		ChunkSize:        num("RAGPDF_CHUNK_SIZE", 900),
		ChunkOverlap:     num("RAGPDF_CHUNK_OVERLAP", 150),
		BatchSize:        num("RAGPDF_BATCH_SIZE", 100),
		TopK:             num("RAGPDF_TOP_K", 40),
		MaxContextTokens: num("RAGPDF_MAX_CONTEXT_TOKENS", 0),
		DBPath:           os.Getenv("RAGPDF_DB"),
		Host:             envOr("RAGPDF_HOST", "127.0.0.1"),
		Port:             num("RAGPDF_PORT", 8080),
		APIKey:           os.Getenv("RAGPDF_API_KEY"),
		Qdrant: QdrantSettings{
			Host:             envOr("QDRANT_HOST", "localhost"),
			Port:             num("QDRANT_PORT", 6334),
			APIKey:           os.Getenv("QDRANT_API_KEY"),
			TLS:              os.Getenv("QDRANT_TLS") == "true",
			CollectionPrefix: envOr("QDRANT_COLLECTION_PREFIX", "ragpdf"),
		},
	}

	offsets, err := ParsePageOffsets(os.Getenv("RAGPDF_PAGE_OFFSETS"))
	if err != nil {
		errs = append(errs, err)
	}
	s.PageOffsets = offsets

	if s.IndexDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			s.IndexDir = filepath.Join(home, ".ragpdf", "indexes")
		} else {
			s.IndexDir = filepath.Join(".ragpdf", "indexes")
		}
	}

	if err := s.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return s, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return s, nil
}

// validate checks cross-field constraints.
func (s Settings) validate() error {
	var errs []error
	if !slices.Contains([]string{BackendMemory, BackendQdrant}, s.IndexBackend) {
		errs = append(errs, fmt.Errorf("RAGPDF_INDEX_BACKEND: want %s or %s, got %q", BackendMemory, BackendQdrant, s.IndexBackend))
	}
	if s.ChunkSize == 0 {
		errs = append(errs, fmt.Errorf("RAGPDF_CHUNK_SIZE must be positive"))
	}
	if s.ChunkOverlap >= s.ChunkSize {
		errs = append(errs, fmt.Errorf("RAGPDF_CHUNK_OVERLAP (%d) must be smaller than RAGPDF_CHUNK_SIZE (%d)", s.ChunkOverlap, s.ChunkSize))
	}
	if s.BatchSize == 0 {
		errs = append(errs, fmt.Errorf("RAGPDF_BATCH_SIZE must be positive"))
	}
	if s.TopK == 0 {
		errs = append(errs, fmt.Errorf("RAGPDF_TOP_K must be positive"))
	}
	return errors.Join(errs...)
}

// StoreEnabled reports whether the SQLite store should be opened.
func (s Settings) StoreEnabled() bool {
	return s.DBPath != DBDisabled
}

// ParsePageOffsets parses "file.pdf=-40,other.pdf=2". Whitespace around
// entries is ignored; the file name is everything before the last "=".
func ParsePageOffsets(raw string) (map[string]int, error) {
	out := map[string]int{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	for entry := range strings.SplitSeq(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		i := strings.LastIndex(entry, "=")
		if i <= 0 {
			return nil, fmt.Errorf("RAGPDF_PAGE_OFFSETS: entry %q is not file=offset", entry)
		}
		name := strings.TrimSpace(entry[:i])
		n, err := strconv.Atoi(strings.TrimSpace(entry[i+1:]))
		if err != nil {
			return nil, fmt.Errorf("RAGPDF_PAGE_OFFSETS: entry %q: offset is not an integer", entry)
		}
		out[name] = n
	}
	return out, nil
}

// FormatPageOffsets is the inverse of ParsePageOffsets, with entries sorted
// by file name. An empty map formats as "".
func FormatPageOffsets(offsets map[string]int) string {
	if len(offsets) == 0 {
		return ""
	}
	names := make([]string, 0, len(offsets))
	for name := range offsets {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + strconv.Itoa(offsets[name])
	}
	return strings.Join(parts, ",")
}

// envOr returns the trimmed env var or fallback when unset.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
