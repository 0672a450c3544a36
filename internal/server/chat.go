package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// maxChatBody bounds the JSON body of POST /api/chat.
const maxChatBody = 64 << 10

// handleChat handles POST /api/chat. The answer and its citations are
// returned as a single JSON document once generation completes.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		s.metrics.chatRequestsTotal.WithLabelValues("invalid").Inc()
		badRequest(w, r, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.metrics.chatRequestsTotal.WithLabelValues("invalid").Inc()
		badRequest(w, r, "question is required")
		return
	}
	ns, err := s.namespaceFor(r, req.Namespace)
	if err != nil {
		s.metrics.chatRequestsTotal.WithLabelValues("invalid").Inc()
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()
	ctx, log := logging.With(ctx, slog.String("namespace", ns))

	start := time.Now()
	answer, err := s.deps.QA.Ask(ctx, ns, req.Question)
	outcome := chatOutcome(err)
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Debug("chat failed", slog.String("outcome", outcome), slog.Any("error", err))
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, answer)
}

// chatOutcome turns an Ask error into a metric label value.
func chatOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, rag.ErrEmptyIndex):
		return "empty_index"
	case errors.Is(err, rag.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, rag.ErrDimensionMismatch):
		return "dimension"
	case errors.Is(err, rag.ErrEmbeddingFailure), errors.Is(err, rag.ErrGenerationFailure):
		return "upstream_error"
	default:
		return "error"
	}
}
