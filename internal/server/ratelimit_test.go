package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// hit sends one request from addr through h and returns the recorder.
func hit(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.RemoteAddr = addr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	rejected := map[string]int{}
	rl, stop := newRateLimiter(0.001, 3, func(route string) {
		mu.Lock()
		rejected[route]++
		mu.Unlock()
	})
	t.Cleanup(stop)
	h := rl.middleware("chat", okHandler)

	for i := range 3 {
		if w := hit(h, "10.0.0.1:5000"); w.Code != http.StatusOK {
			t.Fatalf("request %d: want 200, got %d", i, w.Code)
		}
	}
	w := hit(h, "10.0.0.1:5000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429 after the burst, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("429 body should be JSON, got %q", w.Header().Get("Content-Type"))
	}
	mu.Lock()
	defer mu.Unlock()
	if rejected["chat"] != 1 {
		t.Errorf("onReject: want 1 chat rejection, got %v", rejected)
	}
}

func TestRateLimit_RetryAfterReflectsRefill(t *testing.T) {
	t.Parallel()

	// One token every 4 seconds.
	rl, stop := newRateLimiter(0.25, 1, nil)
	t.Cleanup(stop)
	h := rl.middleware("upload", okHandler)

	hit(h, "10.0.0.2:1")
	w := hit(h, "10.0.0.2:1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", w.Code)
	}
	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || secs < 1 || secs > 4 {
		t.Errorf("Retry-After: want 1..4 seconds, got %q", w.Header().Get("Retry-After"))
	}
}

func TestRateLimit_RoutesAndClientsAreIsolated(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, nil)
	t.Cleanup(stop)
	chat := rl.middleware("chat", okHandler)
	upload := rl.middleware("upload", okHandler)

	if w := hit(upload, "10.0.0.3:1"); w.Code != http.StatusOK {
		t.Fatalf("first upload: want 200, got %d", w.Code)
	}
	if w := hit(upload, "10.0.0.3:1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload: want 429, got %d", w.Code)
	}
	if w := hit(chat, "10.0.0.3:1"); w.Code != http.StatusOK {
		t.Errorf("chat should have its own bucket, got %d", w.Code)
	}
	if w := hit(upload, "10.0.0.4:1"); w.Code != http.StatusOK {
		t.Errorf("another client should have its own bucket, got %d", w.Code)
	}
}

func TestRateLimit_EvictsIdleBuckets(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(1, 1, nil)
	t.Cleanup(stop)

	clock := time.Now()
	rl.now = func() time.Time { return clock }
	h := rl.middleware("chat", okHandler)
	hit(h, "10.0.0.5:1")
	hit(h, "10.0.0.6:1")

	clock = clock.Add(limiterIdleTTL / 2)
	hit(h, "10.0.0.6:1")

	clock = clock.Add(limiterIdleTTL/2 + time.Second)
	rl.evictIdle()
	if n := rl.size(); n != 1 {
		t.Errorf("want only the recently used bucket kept, got %d", n)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remote string
		want   string
	}{
		{"127.0.0.1:12345", "127.0.0.1"},
		{"[::1]:8080", "::1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"no-port", "no-port"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		if got := clientIP(req); got != tc.want {
			t.Errorf("clientIP(%q) = %q, want %q", tc.remote, got, tc.want)
		}
	}
}
