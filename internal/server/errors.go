package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aramishf/RAG-PDF-Expert/internal/index"
	"github.com/aramishf/RAG-PDF-Expert/internal/ingestion"
	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// namespaceHeader carries the target namespace when no query parameter is set.
const namespaceHeader = "X-Namespace"

// retryAfterSeconds is sent with 503s and with retryable upstream failures.
const retryAfterSeconds = "5"

const dimensionMismatchMsg = "embedding dimension does not match the index; reset the namespace and re-ingest"

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrEmptyIndex):
		return http.StatusConflict
	case errors.Is(err, rag.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ingestion.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingestion.ErrJobFinished):
		return http.StatusConflict
	case errors.Is(err, rag.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, ingestion.ErrQueueFull):
		return http.StatusServiceUnavailable
	// Collaborator errors wrap the context error, so the deadline is checked first.
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrEmbeddingFailure), errors.Is(err, rag.ErrGenerationFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error body. Internal errors are logged
// and replaced with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	log := logging.FromContext(r.Context())

	switch status {
	case http.StatusConflict:
		switch {
		case errors.Is(err, rag.ErrEmptyIndex):
			msg = rag.ErrEmptyIndex.Error()
		case errors.Is(err, rag.ErrDimensionMismatch):
			msg = dimensionMismatchMsg
		}
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", retryAfterSeconds)
	case http.StatusInternalServerError:
		log.Error("request failed", slog.Any("error", err))
		msg = "internal error"
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		log.Warn("upstream failure", slog.Any("error", err))
		if rag.IsRetryable(err) {
			w.Header().Set("Retry-After", retryAfterSeconds)
		}
	}
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// badRequest writes a 400 with msg.
func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: msg})
}

// namespaceFor resolves the request namespace: explicit, then the
// ?namespace query parameter, then the X-Namespace header, then the
// configured default. The result is validated.
func (s *Server) namespaceFor(r *http.Request, explicit string) (string, error) {
	ns := strings.TrimSpace(explicit)
	if ns == "" {
		ns = strings.TrimSpace(r.URL.Query().Get("namespace"))
	}
	if ns == "" {
		ns = strings.TrimSpace(r.Header.Get(namespaceHeader))
	}
	if ns == "" {
		ns = s.cfg.DefaultNamespace
	}
	if err := index.ValidateNamespace(ns); err != nil {
		return "", err
	}
	return ns, nil
}
