package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests per second per client and
	// route when Config.RateLimit is zero.
	defaultRateLimit = 10
	// defaultRateBurst is the per-client burst when Config.RateBurst is zero.
	defaultRateBurst = 20
	// limiterIdleTTL is how long an unused bucket is kept.
	limiterIdleTTL = 5 * time.Minute
	// evictInterval is how often idle buckets are swept.
	evictInterval = time.Minute
)

// bucketKey identifies one token bucket: a route class and a client address.
// Uploads and questions draw from separate buckets so a client re-indexing a
// large library can still ask questions.
type bucketKey struct {
	route  string
	client string
}

// bucket is a token bucket plus the last time it was used.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter hands out per-route, per-client token buckets.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket

	rps   rate.Limit
	burst int

	// onReject is called with the route class of every rejected request.
	onReject func(route string)

	// now is the clock; replaced in tests.
	now func() time.Time
}

// newRateLimiter constructs a rateLimiter and starts the idle-bucket sweeper.
// The returned stop function ends the sweeper and may be called repeatedly.
func newRateLimiter(rps float64, burst int, onReject func(route string)) (*rateLimiter, func()) {
	if onReject == nil {
		onReject = func(string) {}
	}
	rl := &rateLimiter{
		buckets:  make(map[bucketKey]*bucket),
		rps:      rate.Limit(rps),
		burst:    burst,
		onReject: onReject,
		now:      time.Now,
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.evictIdle()
			}
		}
	}()

	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

// bucketFor returns the bucket for key, creating it on first use.
func (rl *rateLimiter) bucketFor(key bucketKey) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = rl.now()
	return b.limiter
}

// evictIdle drops buckets unused for longer than limiterIdleTTL.
func (rl *rateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterIdleTTL)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// size returns the number of live buckets.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// middleware limits next under the given route class. Rejected requests get
// 429 with a Retry-After of the whole seconds until a token is available.
func (rl *rateLimiter) middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		limiter := rl.bucketFor(bucketKey{route: route, client: client})

		now := rl.now()
		if limiter.AllowN(now, 1) {
			next.ServeHTTP(w, r)
			return
		}

		rl.onReject(route)
		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("route", route),
			slog.String("ip", client),
		)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter(limiter, now)))
		writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	})
}

// retryAfter is the wait in whole seconds, at least 1, until limiter has a
// token again.
func retryAfter(limiter *rate.Limiter, now time.Time) int {
	res := limiter.ReserveN(now, 1)
	if !res.OK() {
		return 1
	}
	delay := res.DelayFrom(now)
	res.CancelAt(now)
	return max(1, int(math.Ceil(delay.Seconds())))
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is ignored;
// run behind a proxy that rewrites RemoteAddr if per-client limits matter.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
