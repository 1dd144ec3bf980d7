package timetravel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/answer-router/internal/model"
)

func TestClassifyComplexity(t *testing.T) {
	tests := []struct {
		question string
		want     model.Complexity
	}{
		{"What are the latest AI models?", model.ComplexitySimple},
		{"Explain the history of AI", model.ComplexityModerate},
		{"What did people in the industry think about the new phones this year overall?", model.ComplexityModerate},
		{"Compare the best AI architecture approaches", model.ComplexityComplex},
		{"How did leading chip makers plan their strategy over the years when demand went up and down?", model.ComplexityComplex},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, reason := ClassifyComplexity(tt.question)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestTimelines_Embedded(t *testing.T) {
	tl, err := LoadTimelines("")
	require.NoError(t, err)
	now := time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)

	ai := tl.For("What are the latest AI models?", now)
	require.Len(t, ai, 5)
	assert.Equal(t, "Jan 2023 - Pre-GPT-4 Era", ai[0].Label)
	assert.Equal(t, "Today (Mar 04, 2026)", ai[4].Label)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), ai[4].At)

	assert.Equal(t, "sports", tl.Topic("Who won the Super Bowl?").Name)
	assert.Equal(t, "markets", tl.Topic("bitcoin price").Name)
	assert.Equal(t, "politics", tl.Topic("Who is the prime minister?").Name)
	// "ai" must be a whole word.
	assert.Equal(t, "default", tl.Topic("Give me the main details").Name)
	assert.Len(t, tl.For("anything else", now), 4)
}

func TestLoadTimelines_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
topics:
  - name: space
    keywords: [rocket]
    points:
      - {date: "2020-05-30", label: "Crew Dragon"}
      - {date: today}
default:
  points:
    - {date: "2022-01-01", label: "2022"}
`), 0o600))

	tl, err := LoadTimelines(path)
	require.NoError(t, err)
	pts := tl.For("rocket launches", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	require.Len(t, pts, 2)
	assert.Equal(t, "Crew Dragon", pts[0].Label)
}

func TestParseTimelines_Invalid(t *testing.T) {
	_, err := ParseTimelines([]byte("topics: []\n"))
	assert.ErrorContains(t, err, "default timeline")

	_, err = ParseTimelines([]byte("default:\n  points:\n    - {date: \"2023-13-01\", label: x}\n"))
	assert.ErrorContains(t, err, "bad date")

	_, err = LoadTimelines("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	pts := make([]TimePoint, 5)
	for i := range pts {
		pts[i] = TimePoint{Label: string(rune('a' + i))}
	}
	labels := func(ps []TimePoint) string {
		var s string
		for _, p := range ps {
			s += p.Label
		}
		return s
	}

	assert.Equal(t, "abcde", labels(Select(pts, 5)))
	assert.Equal(t, "abcde", labels(Select(pts, 0)))
	assert.Equal(t, "ace", labels(Select(pts, 3)))
	assert.Equal(t, "ae", labels(Select(pts, 2)))
	assert.Equal(t, "e", labels(Select(pts, 1)))
	assert.Equal(t, "abce", labels(Select(pts, 4)))
}

func TestDataPoints(t *testing.T) {
	answer := "Revenue reached $4.2 billion in 2024. Margins grew to 35%. The company ranked #3 globally. " +
		"This is a very long sentence that mentions 2023 but keeps going on and on with filler words so that it is definitely longer than the limit allows."
	pts := DataPoints(answer)
	assert.LessOrEqual(t, len(pts), 3)
	assert.Contains(t, pts, "Margins grew to 35%")
	assert.Empty(t, DataPoints("No numbers here"))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("The cat sat", "the CAT sat"), 1e-9)
	assert.InDelta(t, 0.5, Similarity("a b c", "b c d"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("a", ""), 1e-9)
	assert.InDelta(t, 1.0, Similarity("", " "), 1e-9)
}

func TestParseDeltas(t *testing.T) {
	text := `TRANSITION 1→2:
- GPT-4 launched
• Multimodal input arrived

TRANSITION 2→3:
* Context windows grew
-
- a
- b
- c
- d
- e
---
- final change`
	got := ParseDeltas(text)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"GPT-4 launched", "Multimodal input arrived"}, got[0])
	assert.Len(t, got[1], 5, "at most five changes per transition")
	assert.Equal(t, []string{"final change"}, got[2])
	assert.Empty(t, ParseDeltas("nothing structured"))
}

func TestParseNarrative(t *testing.T) {
	t.Run("json in fence", func(t *testing.T) {
		n, ok := ParseNarrative("```json\n{\"narrative\": \"It grew.\", \"insights\": [\"one\", {\"text\": \"two\"}], \"velocity\": \"Fast\", \"outlook\": \"More.\"}\n```")
		require.True(t, ok)
		assert.Equal(t, "It grew.", n.Narrative)
		assert.Equal(t, []string{"one", "two"}, n.Insights)
		assert.Equal(t, model.VelocityFast, n.Velocity)
		assert.Equal(t, "More.", n.Outlook)
	})

	t.Run("sections", func(t *testing.T) {
		n, ok := ParseNarrative("NARRATIVE: Things changed a lot.\n\nINSIGHTS:\n- first\n- second\n\nVELOCITY: slow.\n\nOUTLOOK: Steady.")
		require.True(t, ok)
		assert.Equal(t, "Things changed a lot.", n.Narrative)
		assert.Equal(t, []string{"first", "second"}, n.Insights)
		assert.Equal(t, model.VelocitySlow, n.Velocity)
		assert.Equal(t, "Steady.", n.Outlook)
	})

	t.Run("fallback to raw text", func(t *testing.T) {
		n, ok := ParseNarrative("Just some prose about change.")
		assert.False(t, ok)
		assert.Equal(t, "Just some prose about change.", n.Narrative)
		assert.Empty(t, n.Insights)
		assert.Equal(t, model.VelocityModerate, n.Velocity)
	})

	t.Run("unknown velocity", func(t *testing.T) {
		n, ok := ParseNarrative(`{"narrative": "x", "velocity": "glacial"}`)
		require.True(t, ok)
		assert.Equal(t, model.VelocityModerate, n.Velocity)
	})
}
