// Package monitoring records per-operation latency, evaluates alert
// thresholds against it and optionally posts alerts to a webhook.
package monitoring

import (
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultWindow is how many samples are kept per operation.
const DefaultWindow = 1000

type sample struct {
	ms      float64
	success bool
}

// OperationStats summarizes the retained samples of one operation.
type OperationStats struct {
	Count     int     `json:"count"`
	Errors    int     `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
	P50Ms     float64 `json:"p50"`
	P95Ms     float64 `json:"p95"`
	P99Ms     float64 `json:"p99"`
	AvgMs     float64 `json:"avg"`
	MinMs     float64 `json:"min"`
	MaxMs     float64 `json:"max"`
}

// MetricsSnapshot holds a point-in-time view of recorded latencies.
type MetricsSnapshot struct {
	Operations    map[string]OperationStats `json:"operations"`
	Counters      map[string]int64          `json:"counters"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
	CollectedAt   time.Time                 `json:"collected_at"`
}

// Collector keeps the latest samples of every operation in memory.
type Collector struct {
	mu       sync.Mutex
	window   int
	samples  map[string][]sample
	counters map[string]int64
	started  time.Time

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCollector creates a collector keeping window samples per operation.
func NewCollector(window int) *Collector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Collector{
		window:   window,
		samples:  make(map[string][]sample),
		counters: make(map[string]int64),
		started:  time.Now(),
		nowFunc:  time.Now,
	}
}

// Record adds one latency sample for operation.
func (c *Collector) Record(operation string, d time.Duration, success bool) {
	ms := float64(d.Microseconds()) / 1000

	c.mu.Lock()
	s := append(c.samples[operation], sample{ms: ms, success: success})
	if len(s) > c.window {
		s = slices.Clone(s[len(s)-c.window:])
	}
	c.samples[operation] = s
	c.counters[operation+"_total"]++
	if !success {
		c.counters[operation+"_errors"]++
	}
	c.mu.Unlock()

	zap.L().Debug("monitoring: latency recorded",
		zap.String("operation", operation),
		zap.Float64("duration_ms", ms),
		zap.Bool("success", success),
	)
}

// Increment adds n to a named counter.
func (c *Collector) Increment(counter string, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[counter] += n
}

// Stats summarizes operation. ok is false when nothing was recorded.
func (c *Collector) Stats(operation string) (OperationStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return summarize(c.samples[operation])
}

// Collect summarizes every operation.
func (c *Collector) Collect() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	ops := make(map[string]OperationStats, len(c.samples))
	for op, s := range c.samples {
		if st, ok := summarize(s); ok {
			ops[op] = st
		}
	}
	now := c.nowFunc()
	return &MetricsSnapshot{
		Operations:    ops,
		Counters:      maps.Clone(c.counters),
		UptimeSeconds: now.Sub(c.started).Seconds(),
		CollectedAt:   now.UTC(),
	}
}

// Reset drops every sample and counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.samples)
	clear(c.counters)
	c.started = c.nowFunc()
}

func summarize(samples []sample) (OperationStats, bool) {
	n := len(samples)
	if n == 0 {
		return OperationStats{}, false
	}

	durations := make([]float64, n)
	var (
		sum    float64
		errors int
	)
	for i, s := range samples {
		durations[i] = s.ms
		sum += s.ms
		if !s.success {
			errors++
		}
	}
	slices.Sort(durations)

	pct := func(p int) float64 {
		return durations[min(n*p/100, n-1)]
	}
	return OperationStats{
		Count:     n,
		Errors:    errors,
		ErrorRate: float64(errors) / float64(n),
		P50Ms:     pct(50),
		P95Ms:     pct(95),
		P99Ms:     pct(99),
		AvgMs:     sum / float64(n),
		MinMs:     durations[0],
		MaxMs:     durations[n-1],
	}, true
}
