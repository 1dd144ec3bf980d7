package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// KeyFunc extracts the client identifier from a request.
type KeyFunc func(r *http.Request) string

// ClientIP keys on the request's remote host. Pair with chi's RealIP
// middleware so proxied addresses are honoured.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

// rejection is the body written for a throttled request.
type rejection struct {
	Error             string    `json:"error"`
	RetryAfterSeconds int       `json:"retry_after_seconds"`
	Timestamp         time.Time `json:"timestamp"`
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func (l *SlidingWindow) Middleware(key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := key(r)
			if !l.Allow(client) {
				retry := l.RetryAfterSeconds(client)
				zap.L().Warn("ratelimit: request rejected",
					zap.String("client", client),
					zap.String("path", r.URL.Path),
					zap.Int("retry_after_secs", retry),
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(rejection{
					Error:             "Rate limit exceeded",
					RetryAfterSeconds: retry,
					Timestamp:         time.Now().UTC(),
				})
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(l.Remaining(client)))
			next.ServeHTTP(w, r)
		})
	}
}
