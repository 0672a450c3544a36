// Package server implements the HTTP API in front of the ingestion job
// queue and the question answering service.
// The server is started by the `ragpdf serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aramishf/RAG-PDF-Expert/internal/index"
	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
)

// New constructs a Server from the provided services and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.QA == nil || deps.Jobs == nil || deps.Indexes == nil {
		return nil, fmt.Errorf("server: qa, jobs and indexes must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: API key not set, authentication disabled")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, func(route string) {
		s.metrics.rateLimitedTotal.WithLabelValues(route).Inc()
	})
	s.stopRL = stop

	protected := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, h)
	}
	limited := func(route string, h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(route, h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/upload", s.instrument("upload", limited("upload", s.handleUpload)))
	mux.Handle("GET /api/jobs/{id}", s.instrument("job", protected(s.handleGetJob)))
	mux.Handle("DELETE /api/jobs/{id}", s.instrument("job_cancel", protected(s.handleCancelJob)))
	mux.Handle("POST /api/chat", s.instrument("chat", limited("chat", s.handleChat)))
	mux.Handle("GET /api/documents", s.instrument("documents", protected(s.handleDocuments)))
	mux.Handle("GET /api/history", s.instrument("history", protected(s.handleHistory)))
	mux.Handle("GET /api/index", s.instrument("index", protected(s.handleIndex)))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// applyDefaults fills zero-valued fields of cfg.
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		// Uploads of large PDFs are read within this window.
		cfg.ReadTimeout = 2 * time.Minute
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.ChatTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	if cfg.DefaultNamespace == "" {
		cfg.DefaultNamespace = index.DefaultNamespace
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
}

// Handler returns the fully wired HTTP handler, middleware included.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("server stopped")
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes body as the JSON response with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}
