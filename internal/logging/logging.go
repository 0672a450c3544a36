// Package logging builds the process logger and carries it through
// context.Context.
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
//	LOG_SOURCE = true adds file:line to every record
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey struct{}

// Options control the handler New builds.
type Options struct {
	Level     slog.Level
	Text      bool
	AddSource bool
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT and LOG_SOURCE.
func OptionsFromEnv() Options {
	return Options{
		Level:     parseLevel(os.Getenv("LOG_LEVEL")),
		Text:      strings.EqualFold(os.Getenv("LOG_FORMAT"), "text"),
		AddSource: os.Getenv("LOG_SOURCE") == "true",
	}
}

// New returns a stderr logger configured from the environment.
func New() *slog.Logger {
	return NewWithWriter(os.Stderr)
}

// NewWithWriter is New writing to w.
func NewWithWriter(w io.Writer) *slog.Logger {
	return OptionsFromEnv().Build(w)
}

// Build returns a logger writing records to w.
func (o Options) Build(w io.Writer) *slog.Logger {
	ho := &slog.HandlerOptions{Level: o.Level, AddSource: o.AddSource}
	if o.Text {
		return slog.New(slog.NewTextHandler(w, ho))
	}
	return slog.New(slog.NewJSONHandler(w, ho))
}

// Discard drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// With derives a logger carrying attrs and stores it in the returned ctx.
func With(ctx context.Context, attrs ...any) (context.Context, *slog.Logger) {
	log := FromContext(ctx).With(attrs...)
	return WithLogger(ctx, log), log
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
