package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/answer-router/internal/cost"
	"github.com/sells-group/answer-router/internal/model"
	"github.com/sells-group/answer-router/internal/orchestrator"
	"github.com/sells-group/answer-router/internal/provider"
	"github.com/sells-group/answer-router/internal/provider/mocks"
)

const synthModel = "claude-sonnet-4-5-20250929"

func newEngine(t *testing.T, p provider.Provider, timeout time.Duration) *Engine {
	t.Helper()
	reg := provider.NewRegistry()
	if p != nil {
		reg.Register(p)
	}
	o := orchestrator.New(reg, nil, cost.NewCalculator(cost.DefaultRates()), orchestrator.Config{},
		orchestrator.WithBackoff(func(int, error) time.Duration { return 0 }))
	return New(o, synthModel, timeout)
}

func ok(id, text string, latency float64) model.ProviderResponse {
	return model.ProviderResponse{Provider: id, Text: text, Success: true, LatencySeconds: latency, Cost: 0.01,
		Tokens: model.NewTokenUsage(10, 20)}
}

func TestSynthesize_NoSuccesses(t *testing.T) {
	e := newEngine(t, nil, 0)
	res := e.Synthesize(context.Background(), "q", []model.ProviderResponse{
		{Provider: "a", Success: false, Error: "boom"},
	})
	assert.Equal(t, NoResponsesAnswer, res.Answer)
	assert.Zero(t, res.Cost)
	assert.False(t, res.Failed)
}

func TestSynthesize_SoleContributor(t *testing.T) {
	e := newEngine(t, nil, 0)
	res := e.Synthesize(context.Background(), "q", []model.ProviderResponse{
		ok("haiku", "Paris is the capital.", 1.2),
		{Provider: "sonnet", Success: false, Error: "timeout"},
	})

	assert.Equal(t, "*Note: Only one model (haiku) provided a successful response.*\n\nParis is the capital.", res.Answer)
	assert.True(t, strings.HasSuffix(res.Answer, "Paris is the capital."))
	assert.Equal(t, "Paris is the capital.", res.SoleText)
	assert.Equal(t, "haiku", res.Model)
	assert.InDelta(t, 0.01, res.Cost, 1e-9)
	assert.Equal(t, map[string]string{"haiku": "Sole contributor"}, res.Contributions)
}

func TestSynthesize_CallsSynthesisModel(t *testing.T) {
	p := mocks.NewMockProvider(synthModel, t)
	p.On("Invoke", mock.Anything, mock.MatchedBy(func(req provider.Request) bool {
		return req.System == systemPrompt && req.MaxTokens == 1500 && req.Temperature == 0.5 &&
			strings.Contains(req.Prompt, "**Question:** Compare A and B") &&
			strings.Contains(req.Prompt, "### Model 2: mid")
	})).Return(&provider.Completion{Text: "Merged answer.", PromptTokens: 1000, CompletionTokens: 1000}, nil).Once()
	e := newEngine(t, p, 0)

	res := e.Synthesize(context.Background(), "Compare A and B", []model.ProviderResponse{
		ok("cheap", "A is fast and small", 1.234),
		ok("mid", "B is slow", 2.5),
	})

	assert.False(t, res.Failed)
	assert.Equal(t, "Merged answer.", res.Answer)
	assert.Equal(t, synthModel, res.Model)
	assert.InDelta(t, 0.018, res.Cost, 1e-9)
	assert.Equal(t, map[string]string{
		"cheap": "Provided 5 words in 1.23s",
		"mid":   "Provided 3 words in 2.50s",
	}, res.Contributions)
}

func TestSynthesize_Failure(t *testing.T) {
	p := mocks.NewMockProvider(synthModel, t)
	p.On("Invoke", mock.Anything, mock.Anything).Return(nil, errors.New("bad gateway")).Once()
	e := newEngine(t, p, 0)

	res := e.Synthesize(context.Background(), "q", []model.ProviderResponse{ok("a", "x", 1), ok("b", "y", 1)})
	assert.True(t, res.Failed)
	assert.True(t, strings.HasPrefix(res.Answer, "Synthesis failed: "))
	assert.Contains(t, res.Answer, "bad gateway")
	assert.Zero(t, res.Cost)
}

func TestSynthesize_Timeout(t *testing.T) {
	p := mocks.NewMockProvider(synthModel, t)
	p.On("Invoke", mock.Anything, mock.Anything).Return(
		func(ctx context.Context, _ provider.Request) (*provider.Completion, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	).Once()
	e := newEngine(t, p, 20*time.Millisecond)

	res := e.Synthesize(context.Background(), "q", []model.ProviderResponse{ok("a", "x", 1), ok("b", "y", 1)})
	assert.True(t, res.Failed)
	assert.Equal(t, TimeoutAnswer, res.Answer)
}

func TestSynthesizeWith_OverridesModel(t *testing.T) {
	p := mocks.NewMockProvider("other", t)
	p.On("Invoke", mock.Anything, mock.Anything).Return(&provider.Completion{Text: "ok"}, nil).Once()
	e := newEngine(t, p, 0)

	res := e.SynthesizeWith(context.Background(), "other", "q", []model.ProviderResponse{ok("a", "x", 1), ok("b", "y", 1)})
	require.False(t, res.Failed)
	assert.Equal(t, "other", res.Model)
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("Why?", []model.ProviderResponse{ok("a", "because", 0.5)})
	assert.Contains(t, prompt, "### Model 1: a\n*Response time: 0.50s | Tokens: 30*\n\nbecause\n")
	assert.Contains(t, prompt, "Model Contributions")
	assert.Contains(t, prompt, "max 500 words")
}
