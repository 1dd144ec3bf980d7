package router

import (
	"maps"
	"math"
	"sync"

	"github.com/sells-group/answer-router/internal/model"
)

// Stats aggregates routing outcomes for the life of the process.
type Stats struct {
	mu        sync.Mutex
	total     int
	byTier    map[model.Complexity]int
	cost      float64
	savings   float64
	usage     map[string]int
	fallbacks int
}

// NewStats creates an empty stats aggregate.
func NewStats() *Stats {
	return &Stats{
		byTier: make(map[model.Complexity]int),
		usage:  make(map[string]int),
	}
}

// Record adds one routed answer.
func (s *Stats) Record(c model.Complexity, b model.CostBreakdown, responses []model.ProviderResponse, fallback bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.byTier[c]++
	s.cost += b.TotalCost
	s.savings += b.Savings
	for _, r := range responses {
		s.usage[r.Provider]++
	}
	if fallback {
		s.fallbacks++
	}
}

// Snapshot returns the current aggregate. The savings percentage compares
// total savings with what the full ensemble would have cost.
func (s *Stats) Snapshot() model.RoutingStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pct float64
	if full := s.cost + s.savings; full > 0 {
		pct = round(s.savings/full*100, 2)
	}
	return model.RoutingStats{
		TotalQueries:             s.total,
		SimpleQueries:            s.byTier[model.ComplexitySimple],
		ModerateQueries:          s.byTier[model.ComplexityModerate],
		ComplexQueries:           s.byTier[model.ComplexityComplex],
		TotalCost:                round(s.cost, 4),
		TotalSavings:             round(s.savings, 4),
		AverageSavingsPercentage: pct,
		ModelUsageDistribution:   maps.Clone(s.usage),
		FallbackCount:            s.fallbacks,
	}
}

// Reset clears every counter.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total, s.cost, s.savings, s.fallbacks = 0, 0, 0, 0
	clear(s.byTier)
	clear(s.usage)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
