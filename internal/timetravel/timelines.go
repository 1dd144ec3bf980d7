package timetravel

import (
	_ "embed"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed timelines.yaml
var embeddedTimelines []byte

const today = "today"

// Timelines is the catalogue of canned time points keyed by topic.
type Timelines struct {
	Topics  []Topic `yaml:"topics"`
	Default Topic   `yaml:"default"`
}

// Topic is one canned timeline and the keywords that select it.
type Topic struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Points   []Point  `yaml:"points"`

	matchers []*regexp.Regexp
}

// Point is a timeline entry as written in YAML. Date is YYYY-MM-DD or "today".
type Point struct {
	Date  string `yaml:"date"`
	Label string `yaml:"label"`
}

// TimePoint is a resolved snapshot date.
type TimePoint struct {
	At    time.Time
	Label string
}

// LoadTimelines parses the catalogue at path, or the embedded default when
// path is empty.
func LoadTimelines(path string) (*Timelines, error) {
	data := embeddedTimelines
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "timetravel: read timelines %s", path)
		}
		data = b
	}
	return ParseTimelines(data)
}

// ParseTimelines decodes and validates a YAML catalogue.
func ParseTimelines(data []byte) (*Timelines, error) {
	var t Timelines
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "timetravel: parse timelines")
	}
	if len(t.Default.Points) == 0 {
		return nil, eris.New("timetravel: timelines need a default timeline")
	}

	topics := append(slices.Clone(t.Topics), t.Default)
	for i := range topics {
		for _, p := range topics[i].Points {
			if p.Date == today {
				continue
			}
			if _, err := time.Parse(time.DateOnly, p.Date); err != nil {
				return nil, eris.Wrapf(err, "timetravel: topic %q has bad date %q", topics[i].Name, p.Date)
			}
		}
	}
	for i := range t.Topics {
		for _, kw := range t.Topics[i].Keywords {
			t.Topics[i].matchers = append(t.Topics[i].matchers,
				regexp.MustCompile(`\b`+regexp.QuoteMeta(strings.ToLower(kw))+`\b`))
		}
	}
	return &t, nil
}

// Topic returns the first topic with a keyword in question, or the default.
func (t *Timelines) Topic(question string) *Topic {
	q := strings.ToLower(question)
	for i := range t.Topics {
		for _, m := range t.Topics[i].matchers {
			if m.MatchString(q) {
				return &t.Topics[i]
			}
		}
	}
	return &t.Default
}

// For resolves the timeline for question against now.
func (t *Timelines) For(question string, now time.Time) []TimePoint {
	return t.Topic(question).Resolve(now)
}

// Resolve converts the topic's points to dates, mapping "today" onto now.
func (tp *Topic) Resolve(now time.Time) []TimePoint {
	out := make([]TimePoint, 0, len(tp.Points))
	for _, p := range tp.Points {
		if p.Date == today {
			d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			out = append(out, TimePoint{At: d, Label: "Today (" + d.Format("Jan 02, 2006") + ")"})
			continue
		}
		d, _ := time.Parse(time.DateOnly, p.Date)
		out = append(out, TimePoint{At: d, Label: p.Label})
	}
	return out
}

// Select caps points at n, keeping the first and last and an evenly spaced
// middle.
func Select(points []TimePoint, n int) []TimePoint {
	if n <= 0 || len(points) <= n {
		return points
	}
	if n == 1 {
		return points[len(points)-1:]
	}

	step := len(points) / (n - 1)
	out := make([]TimePoint, 0, n)
	out = append(out, points[0])
	for i := 1; i < n-1; i++ {
		out = append(out, points[i*step])
	}
	return append(out, points[len(points)-1])
}
