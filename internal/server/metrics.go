package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by route name, not raw path.
const labelHandler = "handler"

// serverMetrics are registered once per Server against Config.MetricsRegistry.
type serverMetrics struct {
	// chatRequestsTotal counts completed /api/chat requests, partitioned by
	// outcome: "ok", "timeout", "empty_index", "invalid", "dimension",
	// "upstream_error" or "error".
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each /api/chat
	// request from receipt to answer.
	chatDurationSeconds *prometheus.HistogramVec

	// uploadsTotal counts /api/upload requests by outcome: "accepted",
	// "rejected", "invalid" or "too_large".
	uploadsTotal *prometheus.CounterVec

	// uploadBytes records the total size of accepted uploads.
	uploadBytes prometheus.Histogram

	// rateLimitedTotal counts requests rejected with 429, by route class.
	rateLimitedTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpdf",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/chat requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragpdf",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/chat requests from receipt to answer.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpdf",
			Subsystem: "upload",
			Name:      "requests_total",
			Help:      "Total number of /api/upload requests, partitioned by outcome.",
		}, []string{"outcome"}),

		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpdf",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the per-client rate limiter.",
		}, []string{"route"}),

		uploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragpdf",
			Subsystem: "upload",
			Name:      "bytes",
			Help:      "Total size of accepted uploads.",
			Buckets:   prometheus.ExponentialBuckets(64<<10, 4, 7),
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragpdf",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragpdf",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument records request count and latency for next under the logical
// handler name.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}
