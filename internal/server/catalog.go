package server

import (
	"net/http"
	"strconv"

	"github.com/aramishf/RAG-PDF-Expert/internal/store"
)

// History page size bounds for GET /api/history.
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// handleDocuments handles GET /api/documents. Without a catalog the list
// is always empty.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	ns, err := s.namespaceFor(r, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := documentsResponse{Namespace: ns}
	if s.deps.Catalog != nil {
		resp.Documents, err = s.deps.Catalog.Documents(r.Context(), ns)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	if resp.Documents == nil {
		resp.Documents = []store.DocumentRecord{}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleHistory handles GET /api/history?limit=N, returning the most recent
// exchanges oldest-first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ns, err := s.namespaceFor(r, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	resp := historyResponse{Namespace: ns}
	if s.deps.History != nil {
		resp.Exchanges, err = s.deps.History.RecentExchanges(r.Context(), ns, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	if resp.Exchanges == nil {
		resp.Exchanges = []store.Exchange{}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleIndex handles GET /api/index with entry counts for one namespace.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ns, err := s.namespaceFor(r, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	idx, err := s.deps.Indexes.Lookup(r.Context(), ns)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := idx.Count(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, indexResponse{
		Backend:    s.deps.Indexes.Backend(),
		Namespace:  ns,
		Entries:    n,
		Dimension:  idx.Dimension(),
		Namespaces: s.deps.Indexes.Namespaces(),
	})
}
