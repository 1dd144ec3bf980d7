package timetravel

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/sells-group/answer-router/internal/classify"
	"github.com/sells-group/answer-router/internal/model"
)

var complexPatterns = compile(
	`\b(best|top|leading|most advanced|state of the art)\b`,
	`\b(compare|comparison|versus|vs\.?|difference between)\b`,
	`\b(architecture|design|implementation|strategy)\b`,
	`\b(comprehensive|detailed|in-depth|thorough)\b`,
	`\b(analysis|analyze|evaluate|assessment)\b`,
	`\b(explain|how does|why does|mechanism)\b`,
	`\b(future|prediction|forecast|outlook|trajectory)\b`,
	`\b(evolution|history|development|progress)\b`,
	`\b(implications|impact|consequences|effects)\b`,
)

var dataPointPatterns = compile(
	`\$[\d,]+(?:\.\d+)?(?:\s*(?:billion|million|trillion))?`,
	`\d+(?:\.\d+)?%`,
	`\d{4}`,
	`#\d+`,
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// ClassifyComplexity grades a question lexically. It is evaluated once per
// run so every snapshot uses the same model.
func ClassifyComplexity(question string) (model.Complexity, string) {
	q := strings.ToLower(question)
	var matches []string
	for _, p := range complexPatterns {
		if m := p.FindString(q); m != "" {
			matches = append(matches, m)
		}
	}
	words := len(strings.Fields(question))

	switch {
	case len(matches) >= 3 || (len(matches) >= 2 && words > 15):
		return model.ComplexityComplex, fmt.Sprintf("High complexity: %s", strings.Join(matches[:min(3, len(matches))], ", "))
	case len(matches) >= 1 || words > 10:
		return model.ComplexityModerate, "Moderate complexity"
	default:
		return model.ComplexitySimple, "Short question with no complexity indicators"
	}
}

// DataPoints pulls up to three short sentences carrying figures from answer.
func DataPoints(answer string) []string {
	sentences := strings.Split(answer, ".")
	var out []string
	for _, p := range dataPointPatterns {
		ms := p.FindAllString(answer, 2)
		for _, m := range ms {
			for _, s := range sentences {
				if strings.Contains(s, m) && len(s) < 150 {
					s = strings.TrimSpace(s)
					if !slices.Contains(out, s) {
						out = append(out, s)
					}
					break
				}
			}
		}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// Similarity is the Jaccard index of the lower-cased word sets of a and b.
// Two empty texts are identical.
func Similarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		if len(wa) == len(wb) {
			return 1
		}
		return 0
	}

	var inter int
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}

const maxChangesPerTransition = 5

// ParseDeltas splits a batched delta response into one change list per
// transition. Transitions open on "TRANSITION" or "---" lines and bullets
// may start with '-', '•' or '*'.
func ParseDeltas(text string) [][]string {
	var (
		out     [][]string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, current)
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "TRANSITION"), strings.HasPrefix(line, "---"):
			flush()
		case strings.HasPrefix(line, "-"), strings.HasPrefix(line, "•"), strings.HasPrefix(line, "*"):
			change := strings.TrimSpace(strings.TrimLeft(line, "-•* "))
			if change != "" && len(current) < maxChangesPerTransition {
				current = append(current, change)
			}
		}
	}
	flush()
	return out
}

// Narrative is the parsed evolution summary.
type Narrative struct {
	Narrative string         `json:"narrative"`
	Insights  []string       `json:"insights"`
	Velocity  model.Velocity `json:"velocity"`
	Outlook   string         `json:"outlook"`
}

type rawNarrative struct {
	Narrative string            `json:"narrative"`
	Insights  []json.RawMessage `json:"insights"`
	Velocity  string            `json:"velocity"`
	Outlook   string            `json:"outlook"`
}

// ParseNarrative reads a JSON or NARRATIVE:/INSIGHTS:/VELOCITY:/OUTLOOK:
// summary. ok is false when neither form is found; the raw text is then
// returned as the narrative with no insights.
func ParseNarrative(text string) (Narrative, bool) {
	text = strings.TrimSpace(text)
	if n, ok := parseNarrativeJSON(text); ok {
		return n, true
	}
	if n, ok := parseNarrativeSections(text); ok {
		return n, true
	}
	return Narrative{Narrative: text, Insights: []string{}, Velocity: model.VelocityModerate}, false
}

func parseNarrativeJSON(text string) (Narrative, bool) {
	obj, err := classify.ExtractJSON(text)
	if err != nil {
		return Narrative{}, false
	}
	var raw rawNarrative
	if err := json.Unmarshal([]byte(obj), &raw); err != nil || raw.Narrative == "" {
		return Narrative{}, false
	}

	insights := make([]string, 0, len(raw.Insights))
	for _, r := range raw.Insights {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			insights = append(insights, s)
			continue
		}
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(r, &obj); err == nil && obj.Text != "" {
			insights = append(insights, obj.Text)
			continue
		}
		insights = append(insights, string(r))
	}
	return Narrative{
		Narrative: raw.Narrative,
		Insights:  insights,
		Velocity:  NormalizeVelocity(raw.Velocity),
		Outlook:   raw.Outlook,
	}, true
}

func parseNarrativeSections(text string) (Narrative, bool) {
	n := Narrative{Insights: []string{}, Velocity: model.VelocityModerate}
	found := false
	for _, section := range strings.Split(text, "\n\n") {
		section = strings.TrimSpace(section)
		switch {
		case strings.HasPrefix(section, "NARRATIVE:"):
			n.Narrative = strings.TrimSpace(strings.TrimPrefix(section, "NARRATIVE:"))
			found = true
		case strings.HasPrefix(section, "INSIGHTS:"):
			for _, line := range strings.Split(section, "\n")[1:] {
				line = strings.TrimSpace(line)
				if strings.HasPrefix(line, "-") {
					n.Insights = append(n.Insights, strings.TrimSpace(strings.TrimLeft(line, "- ")))
				}
			}
		case strings.HasPrefix(section, "VELOCITY:"):
			n.Velocity = NormalizeVelocity(strings.TrimPrefix(section, "VELOCITY:"))
		case strings.HasPrefix(section, "OUTLOOK:"):
			n.Outlook = strings.TrimSpace(strings.TrimPrefix(section, "OUTLOOK:"))
		}
	}
	return n, found && n.Narrative != ""
}

// NormalizeVelocity maps free text like " Fast." onto a Velocity.
func NormalizeVelocity(s string) model.Velocity {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return model.VelocityModerate
	}
	return model.ParseVelocity(strings.Trim(fields[0], ".,;:!()[]\"'"))
}
