// Package ratelimit implements per-client sliding-window admission control.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// SlidingWindow admits at most maxRequests per client within a trailing
// window. Each client's timestamps are pruned on every check.
type SlidingWindow struct {
	maxRequests int
	window      time.Duration

	mu      sync.Mutex
	clients map[string][]time.Time

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a limiter. Non-positive arguments fall back to 60 requests per
// 60 seconds.
func New(maxRequests int, window time.Duration) *SlidingWindow {
	if maxRequests <= 0 {
		maxRequests = 60
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &SlidingWindow{
		maxRequests: maxRequests,
		window:      window,
		clients:     make(map[string][]time.Time),
		nowFunc:     time.Now,
	}
}

// Allow records a request for clientID and reports whether it is admitted.
// Rejected requests are not recorded.
func (l *SlidingWindow) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	stamps := l.prune(clientID, now)
	if len(stamps) >= l.maxRequests {
		return false
	}
	l.clients[clientID] = append(stamps, now)
	return true
}

// RetryAfter returns how long clientID must wait before the next request
// would be admitted. Zero means a request would be admitted now.
func (l *SlidingWindow) RetryAfter(clientID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	stamps := l.prune(clientID, now)
	if len(stamps) < l.maxRequests {
		return 0
	}
	wait := stamps[0].Add(l.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// RetryAfterSeconds is RetryAfter rounded up to whole seconds.
func (l *SlidingWindow) RetryAfterSeconds(clientID string) int {
	return int(math.Ceil(l.RetryAfter(clientID).Seconds()))
}

// Remaining returns how many more requests clientID may make in the window.
func (l *SlidingWindow) Remaining(clientID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := l.prune(clientID, l.nowFunc())
	return max(l.maxRequests-len(stamps), 0)
}

// Reset forgets clientID's history.
func (l *SlidingWindow) Reset(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, clientID)
}

// Clear forgets every client.
func (l *SlidingWindow) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clients = make(map[string][]time.Time)
}

// Limit returns the configured request budget per window.
func (l *SlidingWindow) Limit() int { return l.maxRequests }

// prune drops timestamps that fell out of the trailing window. Caller holds mu.
func (l *SlidingWindow) prune(clientID string, now time.Time) []time.Time {
	stamps := l.clients[clientID]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == len(stamps) {
		delete(l.clients, clientID)
		return nil
	}
	stamps = stamps[i:]
	l.clients[clientID] = stamps
	return stamps
}
