package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
)

// checkTimeout bounds each dependency check in GET /api/ready.
const checkTimeout = 5 * time.Second

// Pinger is a dependency that can report its own reachability.
// Implementations must be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error

	// Name is the label used in readiness responses ("embedder", "qdrant").
	Name() string
}

// readyCheck is the result of one dependency check.
type readyCheck struct {
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every check succeeded.
	Ready bool `json:"ready"`
	// IndexBackend names the vector index backend in use.
	IndexBackend string `json:"index_backend"`
	// Checks are reported in Config.Pingers order.
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. All checks run concurrently, each
// under checkTimeout, so one slow dependency does not hide the others.
// Returns 200 when every check succeeds and 503 otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()

			start := time.Now()
			err := p.Ping(ctx)
			checks[i] = readyCheck{
				Name:       p.Name(),
				OK:         err == nil,
				DurationMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				checks[i].Error = err.Error()
				log.Warn("readiness check failed",
					slog.String("dependency", p.Name()),
					slog.Any("error", err),
				)
			}
		})
	}
	wg.Wait()

	resp := readyResponse{Ready: true, IndexBackend: s.deps.Indexes.Backend(), Checks: checks}
	for _, c := range checks {
		resp.Ready = resp.Ready && c.OK
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
