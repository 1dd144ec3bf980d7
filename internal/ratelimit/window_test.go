package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(max int, window time.Duration) (*SlidingWindow, *time.Time) {
	l := New(max, window)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	return l, &now
}

func TestAllow_ExactlyMaxPerWindow(t *testing.T) {
	l, now := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("client"), "request %d", i+1)
		*now = now.Add(time.Second)
	}
	assert.False(t, l.Allow("client"))
	assert.Equal(t, 0, l.Remaining("client"))

	// The first request falls out exactly one window after it was made.
	*now = now.Add(57 * time.Second)
	assert.True(t, l.Allow("client"))
}

func TestAllow_WindowFullyElapsed(t *testing.T) {
	l, now := newTestLimiter(2, 10*time.Second)

	assert.True(t, l.Allow("c"))
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))

	*now = now.Add(10 * time.Second)
	assert.True(t, l.Allow("c"))
	assert.Equal(t, 1, l.Remaining("c"))
}

func TestAllow_ClientsIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestRejectedRequestsNotRecorded(t *testing.T) {
	l, now := newTestLimiter(1, 10*time.Second)

	assert.True(t, l.Allow("c"))
	*now = now.Add(5 * time.Second)
	assert.False(t, l.Allow("c"))

	// Only the admitted request counts, so the window reopens at t+10s.
	*now = now.Add(5 * time.Second)
	assert.True(t, l.Allow("c"))
}

func TestRetryAfter(t *testing.T) {
	l, now := newTestLimiter(2, time.Minute)

	assert.Zero(t, l.RetryAfter("c"))
	l.Allow("c")
	*now = now.Add(20 * time.Second)
	l.Allow("c")

	assert.Equal(t, 40*time.Second, l.RetryAfter("c"))
	assert.Equal(t, 40, l.RetryAfterSeconds("c"))

	*now = now.Add(500 * time.Millisecond)
	assert.Equal(t, 40, l.RetryAfterSeconds("c"), "rounded up")
}

func TestResetAndClear(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	l.Allow("a")
	l.Allow("b")
	l.Reset("a")
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("b"))

	l.Clear()
	assert.True(t, l.Allow("b"))
}

func TestNewDefaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, 60, l.Limit())
	assert.Equal(t, 60, l.Remaining("x"))
}

func TestAllow_Concurrent(t *testing.T) {
	l := New(25, time.Minute)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(25), admitted.Load())
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	handler := l.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/route-and-answer", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Rate limit exceeded", body["error"])
	assert.EqualValues(t, 60, body["retry_after_seconds"])

	// A different address has its own window.
	other := httptest.NewRequest(http.MethodPost, "/api/route-and-answer", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, other)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:1234"
	assert.Equal(t, "192.168.1.9", ClientIP(req))

	req.RemoteAddr = "bare-host"
	assert.Equal(t, "bare-host", ClientIP(req))

	req.RemoteAddr = ""
	assert.Equal(t, "unknown", ClientIP(req))
}
