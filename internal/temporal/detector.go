// Package temporal inspects question text for time sensitivity. Nothing in
// here performs I/O.
package temporal

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/answer-router/internal/model"
)

// DefaultCutoffYear is the knowledge-cutoff year assumed for backing models.
const DefaultCutoffYear = 2023

// keywordPattern matches the temporal markers a question may carry. Longer
// phrases come first so "right now" is reported ahead of "now".
var keywordPattern = regexp.MustCompile(`(?i)\b(right now|this week|this month|this year|as of|up-to-date|stock price|latest|currently|current|recently|recent|today|now|breaking|trending|upcoming|newest|new|present|nowadays|news|election|weather|score)\b`)

// currencyPattern is the narrower subset that signals the caller wants data
// from after the model's training window.
var currencyPattern = regexp.MustCompile(`(?i)\b(latest|current|today|now|breaking|trending)\b`)

var yearPattern = regexp.MustCompile(`\b(20[2-3]\d)\b`)

// Detector scores questions against a knowledge-cutoff year and a clock.
type Detector struct {
	cutoffYear int
	nowFunc    func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithCutoffYear sets the knowledge-cutoff year.
func WithCutoffYear(year int) Option {
	return func(d *Detector) {
		if year > 0 {
			d.cutoffYear = year
		}
	}
}

// WithClock overrides the clock used to resolve "now".
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.nowFunc = now
		}
	}
}

// NewDetector creates a Detector.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{cutoffYear: DefaultCutoffYear, nowFunc: time.Now}
	for _, o := range opts {
		o(d)
	}
	return d
}

// CutoffYear returns the configured knowledge-cutoff year.
func (d *Detector) CutoffYear() int { return d.cutoffYear }

var defaultDetector = NewDetector()

// Detect runs the default detector.
func Detect(question string) model.TemporalDetection {
	return defaultDetector.Detect(question)
}

// Detect classifies question. It never fails; an empty question is evergreen.
func (d *Detector) Detect(question string) model.TemporalDetection {
	lower := strings.ToLower(question)
	currentYear := d.nowFunc().Year()

	keywords := uniqueSorted(keywordPattern.FindAllString(lower, -1))

	var years []int
	for _, m := range yearPattern.FindAllString(question, -1) {
		y, err := strconv.Atoi(m)
		if err == nil {
			years = append(years, y)
		}
	}

	pastCutoff := slices.ContainsFunc(years, func(y int) bool { return y > d.cutoffYear })
	isTemporal := len(keywords) > 0 || pastCutoff

	requiresCurrent := currencyPattern.MatchString(lower) ||
		slices.ContainsFunc(years, func(y int) bool { return y > d.cutoffYear && y <= currentYear+1 })

	var scope model.TemporalScope
	switch {
	case !isTemporal:
		scope = model.ScopeEvergreen
	case slices.ContainsFunc(years, func(y int) bool { return y > currentYear }):
		scope = model.ScopeFuture
	case len(years) > 0 && !pastCutoff:
		scope = model.ScopeHistorical
	default:
		scope = model.ScopeCurrent
	}

	var confidence float64
	switch {
	case len(keywords) > 0 && len(years) > 0:
		confidence = 0.95
	case len(keywords) > 0:
		confidence = 0.85
	case len(years) > 0 && pastCutoff:
		confidence = 0.80
	case len(years) > 0:
		confidence = 0.60
	default:
		confidence = 0.50
	}

	var reasons []string
	if len(keywords) > 0 {
		reasons = append(reasons, fmt.Sprintf("Temporal keywords detected: %s", strings.Join(keywords, ", ")))
	}
	if len(years) > 0 {
		reasons = append(reasons, fmt.Sprintf("Years mentioned: %s", joinInts(years)))
	}
	if requiresCurrent {
		reasons = append(reasons, "Query explicitly requests current/recent information")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "No temporal indicators found")
	}

	return model.TemporalDetection{
		IsTemporal:          isTemporal,
		Scope:               scope,
		RequiresCurrentData: requiresCurrent,
		Keywords:            keywords,
		Years:               years,
		Confidence:          confidence,
		Reasoning:           strings.Join(reasons, "; "),
	}
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
