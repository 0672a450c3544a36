package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
)

// clearEnv unsets keys for the duration of the test.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestLoad_MissingExplicitPath(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/path/config.yaml", logging.Discard())
	if err == nil {
		t.Fatal("expected error for a missing --config path")
	}
}

func TestLoad_NoFileFound(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RAGPDF_CONFIG", "")
	t.Chdir(t.TempDir())

	path, err := Load("", logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: azure
  max_tokens: 8192
  temperature: 0.3
  azure:
    endpoint: https://my-resource.openai.azure.com
    deployment: gpt-4o
    api_version: "2025-04-01-preview"
embedding:
  provider: ollama
  model: nomic-embed-text
  retries: 5
index:
  backend: qdrant
  namespace: textbooks
chunking:
  size: 1200
  overlap: 200
retrieval:
  top_k: 25
citations:
  page_offsets:
    Biology.pdf: -40
    Atlas.pdf: 2
qdrant:
  host: qdrant.internal
  port: 6334
  collection_prefix: books
logging:
  level: debug
  format: text
  source: true
store:
  db_path: disabled
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":           "azure",
		"MODEL_MAX_TOKENS":         "8192",
		"MODEL_TEMPERATURE":        "0.3",
		"AZURE_OPENAI_ENDPOINT":    "https://my-resource.openai.azure.com",
		"AZURE_OPENAI_DEPLOYMENT":  "gpt-4o",
		"AZURE_OPENAI_API_VERSION": "2025-04-01-preview",
		"EMBEDDING_PROVIDER":       "ollama",
		"EMBEDDING_MODEL":          "nomic-embed-text",
		"EMBEDDING_RETRIES":        "5",
		"RAGPDF_INDEX_BACKEND":     "qdrant",
		"RAGPDF_NAMESPACE":         "textbooks",
		"RAGPDF_CHUNK_SIZE":        "1200",
		"RAGPDF_CHUNK_OVERLAP":     "200",
		"RAGPDF_TOP_K":             "25",
		"RAGPDF_PAGE_OFFSETS":      "Atlas.pdf=2,Biology.pdf=-40",
		"QDRANT_HOST":              "qdrant.internal",
		"QDRANT_PORT":              "6334",
		"QDRANT_COLLECTION_PREFIX": "books",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
		"LOG_SOURCE":               "true",
		"RAGPDF_DB":                "disabled",
	}
	keys := make([]string, 0, len(checks))
	for k := range checks {
		keys = append(keys, k)
	}
	clearEnv(t, keys...)

	loaded, err := Load(cfgPath, logging.Discard())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
index:
  namespace: from-yaml
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MODEL_PROVIDER", "azure")
	t.Setenv("RAGPDF_NAMESPACE", "from-env")

	if _, err := Load(cfgPath, logging.Discard()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "azure" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "azure", got)
	}
	if got := os.Getenv("RAGPDF_NAMESPACE"); got != "from-env" {
		t.Errorf("RAGPDF_NAMESPACE: expected env override %q, got %q", "from-env", got)
	}
}

func TestLoad_ConfigEnvVar(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "elsewhere.yaml")
	if err := os.WriteFile(cfgPath, []byte("logging:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RAGPDF_CONFIG", cfgPath)
	clearEnv(t, "LOG_LEVEL")

	loaded, err := Load("", logging.Discard())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("want %q, got %q", cfgPath, loaded)
	}
	if got := os.Getenv("LOG_LEVEL"); got != "warn" {
		t.Errorf("LOG_LEVEL: want warn, got %q", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath, logging.Discard()); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(cfgPath, logging.Discard())
	if err != nil {
		t.Fatalf("empty file should load: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("want %q, got %q", cfgPath, loaded)
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePageOffsets(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    map[string]int
		wantErr bool
	}{
		{"", map[string]int{}, false},
		{"Biology.pdf=-40", map[string]int{"Biology.pdf": -40}, false},
		{" a.pdf = 2 , b.pdf=0,", map[string]int{"a.pdf": 2, "b.pdf": 0}, false},
		{"odd=name.pdf=3", map[string]int{"odd=name.pdf": 3}, false},
		{"missing", nil, true},
		{"=3", nil, true},
		{"a.pdf=two", nil, true},
	}
	for _, tc := range cases {
		got, err := ParsePageOffsets(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tc.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%q: got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFormatPageOffsets_RoundTrips(t *testing.T) {
	t.Parallel()

	in := map[string]int{"z.pdf": 1, "a.pdf": -3}
	s := FormatPageOffsets(in)
	if s != "a.pdf=-3,z.pdf=1" {
		t.Errorf("unexpected format %q", s)
	}
	back, err := ParsePageOffsets(s)
	if err != nil || !reflect.DeepEqual(back, in) {
		t.Errorf("round trip: got %v, %v", back, err)
	}
	if FormatPageOffsets(nil) != "" {
		t.Error("nil map should format as empty string")
	}
}

// settingsKeys are every env var FromEnv reads.
var settingsKeys = []string{
	"RAGPDF_INDEX_BACKEND", "RAGPDF_INDEX_DIR", "RAGPDF_NAMESPACE",
	"RAGPDF_CHUNK_SIZE", "RAGPDF_CHUNK_OVERLAP", "RAGPDF_BATCH_SIZE",
	"RAGPDF_TOP_K", "RAGPDF_MAX_CONTEXT_TOKENS", "RAGPDF_PAGE_OFFSETS",
	"RAGPDF_DB", "RAGPDF_HOST", "RAGPDF_PORT", "RAGPDF_API_KEY",
	"QDRANT_HOST", "QDRANT_PORT", "QDRANT_API_KEY", "QDRANT_TLS", "QDRANT_COLLECTION_PREFIX",
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t, settingsKeys...)
	home := t.TempDir()
	t.Setenv("HOME", home)

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.IndexBackend != BackendMemory || s.Namespace != "default" {
		t.Errorf("backend/namespace defaults: %+v", s)
	}
	if s.ChunkSize != 900 || s.ChunkOverlap != 150 || s.BatchSize != 100 || s.TopK != 40 {
		t.Errorf("numeric defaults: %+v", s)
	}
	if s.IndexDir != filepath.Join(home, ".ragpdf", "indexes") {
		t.Errorf("IndexDir: got %q", s.IndexDir)
	}
	if !s.StoreEnabled() || len(s.PageOffsets) != 0 {
		t.Errorf("store/offsets defaults: %+v", s)
	}
	if s.Qdrant.Port != 6334 || s.Qdrant.CollectionPrefix != "ragpdf" {
		t.Errorf("qdrant defaults: %+v", s.Qdrant)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t, settingsKeys...)
	t.Setenv("RAGPDF_INDEX_BACKEND", "QDRANT")
	t.Setenv("RAGPDF_TOP_K", "12")
	t.Setenv("RAGPDF_PAGE_OFFSETS", "Biology.pdf=-40")
	t.Setenv("RAGPDF_DB", "disabled")
	t.Setenv("QDRANT_TLS", "true")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.IndexBackend != BackendQdrant || s.TopK != 12 || !s.Qdrant.TLS {
		t.Errorf("overrides not applied: %+v", s)
	}
	if s.PageOffsets["Biology.pdf"] != -40 {
		t.Errorf("page offsets: %v", s.PageOffsets)
	}
	if s.StoreEnabled() {
		t.Error("RAGPDF_DB=disabled should disable the store")
	}
}

func TestFromEnv_ReportsAllErrors(t *testing.T) {
	clearEnv(t, settingsKeys...)
	t.Setenv("RAGPDF_INDEX_BACKEND", "faiss")
	t.Setenv("RAGPDF_CHUNK_SIZE", "100")
	t.Setenv("RAGPDF_CHUNK_OVERLAP", "100")
	t.Setenv("RAGPDF_BATCH_SIZE", "lots")

	_, err := FromEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"RAGPDF_INDEX_BACKEND", "RAGPDF_CHUNK_OVERLAP", "RAGPDF_BATCH_SIZE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
