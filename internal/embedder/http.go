// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. Ollama and OpenAI-compatible
// backends are spoken to over plain HTTP, Gemini through the genai SDK, and
// every backend is wrapped by [Retrying] so transient failures are retried
// before they surface as rag.ErrEmbeddingFailure.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// statusError is returned when a backend answers with a non-2xx status.
type statusError struct {
	// Code is the HTTP status code.
	Code int
	// Message is the backend's error text, if it sent one.
	Message string
}

func (e *statusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}

// postJSON sends body as JSON to url and decodes the response into out.
// On a non-2xx status the body is still decoded (best effort) so callers can
// lift the backend's error message into the returned *statusError.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = json.Unmarshal(raw, out)
		return &statusError{Code: resp.StatusCode}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// transient reports whether err is worth retrying: network failures,
// rate limiting and server-side errors. Client errors and malformed
// responses are not.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}
