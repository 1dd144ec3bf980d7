package timetravel

import (
	"fmt"
	"strings"

	"github.com/sells-group/answer-router/internal/model"
)

const (
	deltaAnswerChars     = 600
	narrativeAnswerChars = 300
)

const deltaSystemPrompt = `Analyze the evolution of answers across time periods.
For each transition (Period 1 → Period 2, Period 2 → Period 3, etc.),
list 2-3 key changes. Format as:

TRANSITION 1→2:
- [change 1]
- [change 2]

TRANSITION 2→3:
- [change 1]
- [change 2]
...and so on.`

const narrativeSystemPrompt = `Analyze how answers evolved over time. Provide:
1. A narrative summary of the evolution (1-2 paragraphs)
2. Key insights (3-4 bullet points)
3. Change velocity (fast/moderate/slow/minimal)
4. Future outlook (1 paragraph)

Format as JSON with keys: narrative, insights, velocity, outlook`

func snapshotSystemPrompt(date string) string {
	return fmt.Sprintf(`You are answering questions as if the current date is %s.
Answer ONLY using information available on %s. Do NOT reference events after this date.
Provide specific numbers, names, dates, and metrics where available.
This is a TEMPORAL SYNTHESIS task - be comprehensive and detailed.`, date, date)
}

func snapshotPrompt(question, date string) string {
	return fmt.Sprintf(`Question: %s

Answer as if today is %s. Include:
1. Comprehensive answer based on knowledge up to %s
2. Specific data points and dates from this period
3. Context about what was notable at this time

If something doesn't exist yet as of %s, clearly state this.`, question, date, date, date)
}

func deltaPrompt(snapshots []model.TimeSnapshot) string {
	parts := make([]string, len(snapshots))
	for i, s := range snapshots {
		parts[i] = fmt.Sprintf("**%s**:\n%s...", s.Label, clip(s.Answer, deltaAnswerChars))
	}
	return "Compare these answers:\n\n" + strings.Join(parts, "\n\n---\n\n")
}

func narrativePrompt(question string, snapshots []model.TimeSnapshot) string {
	parts := make([]string, 0, len(snapshots))
	for _, s := range snapshots {
		if s.Failed {
			continue
		}
		parts = append(parts, fmt.Sprintf("**%s**: %s...", s.Label, clip(s.Answer, narrativeAnswerChars)))
	}
	return fmt.Sprintf("Question: %s\n\nTimeline:\n%s", question, strings.Join(parts, "\n\n"))
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
