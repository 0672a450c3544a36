package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "TEXT")
	t.Setenv("LOG_SOURCE", "true")

	got := OptionsFromEnv()
	want := Options{Level: slog.LevelDebug, Text: true, AddSource: true}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestOptionsBuild(t *testing.T) {
	t.Parallel()

	var jsonBuf, textBuf bytes.Buffer
	Options{Level: slog.LevelWarn}.Build(&jsonBuf).Info("dropped")
	Options{Level: slog.LevelWarn}.Build(&jsonBuf).Warn("kept")
	Options{Text: true}.Build(&textBuf).Info("plain")

	if strings.Contains(jsonBuf.String(), "dropped") {
		t.Error("record below level was written")
	}
	if !json.Valid(bytes.TrimSpace(jsonBuf.Bytes())) {
		t.Errorf("want one JSON record, got %q", jsonBuf.String())
	}
	if !strings.Contains(textBuf.String(), "msg=plain") {
		t.Errorf("want text record, got %q", textBuf.String())
	}
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("want slog.Default for a bare context")
	}
}

func TestWith_AddsAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := WithLogger(t.Context(), slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx, log := With(ctx, slog.String("job_id", "j1"))
	log.Info("hello")
	FromContext(ctx).Info("again")

	dec := json.NewDecoder(&buf)
	for range 2 {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rec["job_id"] != "j1" {
			t.Errorf("want job_id attribute, got %v", rec)
		}
	}
}
