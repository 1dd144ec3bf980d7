package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/answer-router/internal/model"
)

func TestClassifySensitivity(t *testing.T) {
	tests := []struct {
		question string
		want     model.Sensitivity
	}{
		{"What is the capital of France?", model.SensitivityNone},
		{"How many continents are there?", model.SensitivityNone},
		{"What is recursion?", model.SensitivityNone},
		{"Who is the current president of the United States?", model.SensitivityHigh},
		{"What are the latest AI models?", model.SensitivityHigh},
		{"How is the bitcoin price doing?", model.SensitivityHigh},
		{"Who won the Super Bowl?", model.SensitivityHigh},
		{"What will robotics look like in 2027?", model.SensitivityHigh},
		{"How has Python evolved?", model.SensitivityMedium},
		{"What is the state of the art in protein folding?", model.SensitivityMedium},
		{"What are the GDPR requirements for startups?", model.SensitivityMedium},
		{"Why is the sky blue?", model.SensitivityLow},
		{"", model.SensitivityLow},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, reason := ClassifySensitivity(tt.question)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestClassifySensitivity_TimelessWins(t *testing.T) {
	got, _ := ClassifySensitivity("What is the capital of France right now?")
	assert.Equal(t, model.SensitivityNone, got)
}

func TestClassifySensitivity_ReasonListsMatches(t *testing.T) {
	_, reason := ClassifySensitivity("breaking news about the bitcoin price today")
	assert.Contains(t, reason, "breaking news")
	assert.Contains(t, reason, "bitcoin price")
	assert.Contains(t, reason, "today")
}

func TestClassifySensitivity_EligibleLevels(t *testing.T) {
	high, _ := ClassifySensitivity("What is the latest news?")
	low, _ := ClassifySensitivity("Why is the sky blue?")
	assert.True(t, high.Eligible())
	assert.False(t, low.Eligible())
}
