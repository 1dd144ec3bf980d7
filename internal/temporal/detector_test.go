package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/answer-router/internal/model"
)

func fixedClock(year int) Option {
	return WithClock(func() time.Time {
		return time.Date(year, time.June, 1, 12, 0, 0, 0, time.UTC)
	})
}

func TestDetect(t *testing.T) {
	d := NewDetector(fixedClock(2026))

	tests := []struct {
		name            string
		question        string
		temporal        bool
		requiresCurrent bool
		scope           model.TemporalScope
		confidence      float64
		keywords        []string
		years           []int
	}{
		{
			name:            "latest news",
			question:        "What's the latest news in AI?",
			temporal:        true,
			requiresCurrent: true,
			scope:           model.ScopeCurrent,
			confidence:      0.85,
			keywords:        []string{"latest", "news"},
		},
		{
			name:       "evergreen fact",
			question:   "What is the capital of France?",
			scope:      model.ScopeEvergreen,
			confidence: 0.50,
		},
		{
			name:       "historical year with keyword",
			question:   "Who won the election in 2020?",
			temporal:   true,
			scope:      model.ScopeHistorical,
			confidence: 0.95,
			keywords:   []string{"election"},
			years:      []int{2020},
		},
		{
			name:       "future year only",
			question:   "What will cities look like in 2030?",
			temporal:   true,
			scope:      model.ScopeFuture,
			confidence: 0.80,
			years:      []int{2030},
		},
		{
			name:            "recent year past cutoff",
			question:        "Summarize the major events of 2025",
			temporal:        true,
			requiresCurrent: true,
			scope:           model.ScopeCurrent,
			confidence:      0.80,
			years:           []int{2025},
		},
		{
			name:       "old year alone is not temporal",
			question:   "Tell me about the 2021 season",
			scope:      model.ScopeEvergreen,
			confidence: 0.60,
			years:      []int{2021},
		},
		{
			name:            "phrase keyword",
			question:        "What is trending right now?",
			temporal:        true,
			requiresCurrent: true,
			scope:           model.ScopeCurrent,
			confidence:      0.85,
			keywords:        []string{"right now", "trending"},
		},
		{
			name:       "substring of a keyword does not match",
			question:   "What do you know about goroutines?",
			scope:      model.ScopeEvergreen,
			confidence: 0.50,
		},
		{
			name:       "empty question",
			question:   "",
			scope:      model.ScopeEvergreen,
			confidence: 0.50,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.question)
			assert.Equal(t, tt.temporal, got.IsTemporal)
			assert.Equal(t, tt.requiresCurrent, got.RequiresCurrentData)
			assert.Equal(t, tt.scope, got.Scope)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.keywords, got.Keywords)
			assert.Equal(t, tt.years, got.Years)
			assert.NotEmpty(t, got.Reasoning)
		})
	}
}

func TestDetect_KeywordsDeduplicated(t *testing.T) {
	got := NewDetector(fixedClock(2026)).Detect("Latest! The LATEST latest news")
	assert.Equal(t, []string{"latest", "news"}, got.Keywords)
}

func TestDetect_EveryKeywordIsTemporal(t *testing.T) {
	d := NewDetector(fixedClock(2026))
	for _, kw := range []string{
		"latest", "current", "currently", "recent", "recently", "today", "now",
		"right now", "this week", "this month", "this year", "breaking",
		"trending", "upcoming", "new", "newest", "up-to-date", "as of",
		"present", "nowadays", "stock price", "news", "election", "weather", "score",
	} {
		got := d.Detect("tell me about " + kw + " things")
		assert.Truef(t, got.IsTemporal, "keyword %q should be temporal", kw)
	}
}

func TestDetect_CutoffOption(t *testing.T) {
	d := NewDetector(WithCutoffYear(2025), fixedClock(2026))
	assert.Equal(t, 2025, d.CutoffYear())

	got := d.Detect("Summarize the major events of 2025")
	assert.False(t, got.IsTemporal)

	got = d.Detect("Summarize the major events of 2026")
	assert.True(t, got.IsTemporal)
	assert.True(t, got.RequiresCurrentData)
}

func TestDetect_ReasoningParts(t *testing.T) {
	got := NewDetector(fixedClock(2026)).Detect("latest results from 2025")
	assert.Equal(t,
		"Temporal keywords detected: latest; Years mentioned: 2025; Query explicitly requests current/recent information",
		got.Reasoning)
}

func TestDetect_PackageDefault(t *testing.T) {
	got := Detect("What is the weather today?")
	assert.True(t, got.IsTemporal)
	assert.True(t, got.RequiresCurrentData)
}
