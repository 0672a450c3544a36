package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

func Test_Metrics_EndpointServesRegistry(t *testing.T) {
	t.Parallel()
	rig := newRig(t, nil)

	srv := httptest.NewServer(rig.srv.Handler())
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_ChatOutcomesCounted(t *testing.T) {
	t.Parallel()
	rig := newRig(t, nil)

	rig.do(chatRequestFor(`{"question":"one"}`))
	rig.do(chatRequestFor(`{"question":"two"}`))
	rig.asker.err = rag.ErrEmptyIndex
	rig.do(chatRequestFor(`{"question":"three"}`))
	rig.do(chatRequestFor(`{}`))

	m := rig.srv.metrics
	if got := testutil.ToFloat64(m.chatRequestsTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok: want 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.chatRequestsTotal.WithLabelValues("empty_index")); got != 1 {
		t.Errorf("empty_index: want 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.chatRequestsTotal.WithLabelValues("invalid")); got != 1 {
		t.Errorf("invalid: want 1, got %v", got)
	}
	if n := testutil.CollectAndCount(m.chatDurationSeconds); n != 2 {
		t.Errorf("want duration series for ok and empty_index, got %d", n)
	}
}

func Test_Metrics_HTTPRequestsLabelledByHandler(t *testing.T) {
	t.Parallel()
	rig := newRig(t, nil)

	rig.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	rig.do(httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil))

	m := rig.srv.metrics
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "health", "200")); got != 1 {
		t.Errorf("health 200: want 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "job", "404")); got != 1 {
		t.Errorf("job 404: want 1, got %v", got)
	}
}

func Test_Metrics_UploadOutcomes(t *testing.T) {
	t.Parallel()
	rig := newRig(t, nil)

	rig.do(multipartUpload(t, uploadField, map[string]string{"a.txt": "hello"}, nil))
	rig.jobs.submitErr = errors.New("boom")
	rig.do(multipartUpload(t, uploadField, map[string]string{"a.txt": "hello"}, nil))

	m := rig.srv.metrics
	if got := testutil.ToFloat64(m.uploadsTotal.WithLabelValues("accepted")); got != 1 {
		t.Errorf("accepted: want 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.uploadsTotal.WithLabelValues("rejected")); got != 1 {
		t.Errorf("rejected: want 1, got %v", got)
	}
	if n := testutil.CollectAndCount(m.uploadBytes); n != 1 {
		t.Errorf("want one upload size histogram, got %d", n)
	}
}

func Test_Metrics_NamespacePrefix(t *testing.T) {
	t.Parallel()
	rig := newRig(t, nil)
	rig.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))

	srv := httptest.NewServer(rig.srv.Handler())
	t.Cleanup(srv.Close)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ragpdf_http_requests_total") {
		t.Error("ragpdf_http_requests_total missing from /metrics output")
	}
}

func Test_Metrics_RateLimitedRequestsCounted(t *testing.T) {
	t.Parallel()
	rig := newRig(t, func(_ *Deps, cfg *Config) {
		cfg.RateLimit = 0.001
		cfg.RateBurst = 1
	})

	rig.do(chatRequestFor(`{"question":"one"}`))
	w := rig.do(chatRequestFor(`{"question":"two"}`))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", w.Code)
	}

	m := rig.srv.metrics
	if got := testutil.ToFloat64(m.rateLimitedTotal.WithLabelValues("chat")); got != 1 {
		t.Errorf("chat rate limited: want 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "chat", "429")); got != 1 {
		t.Errorf("chat 429: want 1, got %v", got)
	}
}
