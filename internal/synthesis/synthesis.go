// Package synthesis merges several provider answers into one.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/answer-router/internal/model"
	"github.com/sells-group/answer-router/internal/orchestrator"
	"github.com/sells-group/answer-router/internal/provider"
)

// Synthesis call settings.
const (
	DefaultTimeout = 60 * time.Second
	maxTokens      = 1500
	temperature    = 0.5
)

// Answers used when no synthesis call could run or it failed.
const (
	NoResponsesAnswer = "Unable to synthesize: No successful model responses available."
	TimeoutAnswer     = "Synthesis failed: Request timed out. Please try again."
)

const systemPrompt = "You are an expert at synthesizing information from multiple sources. " +
	"Your goal is to create a comprehensive, accurate, and well-organized " +
	"summary that captures the best insights from all sources."

const promptTemplate = `You are a synthesis expert. I asked a question and received responses from different AI models.
Each response offers a unique perspective based on the model's strengths.

**Question:** %s

**Model Responses:**
%s

---

Please synthesize these responses into a single, coherent, and accurate answer that:

1. **Extracts the most valuable insights** from each model
2. **Identifies and resolves any contradictions** between responses
3. **Presents information in a clear, logical order**
4. **Highlights areas where models agreed** (indicating higher confidence)
5. **Notes any unique perspectives** that add value

## Guidelines:
- Format your answer in markdown with clear sections
- Keep the response concise but comprehensive (max 500 words)
- Use bullet points or numbered lists where appropriate
- If models disagreed on something, explain the different perspectives
- End with a brief "Model Contributions" section noting what each model uniquely contributed

Provide your synthesized answer:`

// Caller is the part of the orchestrator synthesis needs.
type Caller interface {
	CallOne(ctx context.Context, providerID, question string, p orchestrator.Params) model.ProviderResponse
}

// Engine synthesizes with one configured model.
type Engine struct {
	caller  Caller
	model   string
	timeout time.Duration
}

// New creates a synthesis engine that calls synthesisModel through caller.
func New(caller Caller, synthesisModel string, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{caller: caller, model: synthesisModel, timeout: timeout}
}

// Model returns the default synthesis model.
func (e *Engine) Model() string { return e.model }

// Synthesize merges responses with the default model. It never fails: a
// failure is reported in the result's Answer and Failed fields.
func (e *Engine) Synthesize(ctx context.Context, question string, responses []model.ProviderResponse) model.SynthesisResult {
	return e.SynthesizeWith(ctx, e.model, question, responses)
}

// SynthesizeWith merges responses using synthesisModel, or the default when empty.
func (e *Engine) SynthesizeWith(ctx context.Context, synthesisModel, question string, responses []model.ProviderResponse) model.SynthesisResult {
	if synthesisModel == "" {
		synthesisModel = e.model
	}
	start := time.Now()
	now := start.UTC()

	ok := usable(responses)
	switch len(ok) {
	case 0:
		zap.L().Warn("synthesis: no successful responses to synthesize")
		return model.SynthesisResult{
			Answer:    NoResponsesAnswer,
			Model:     synthesisModel,
			Timestamp: now,
		}
	case 1:
		r := ok[0]
		return model.SynthesisResult{
			Answer:         fmt.Sprintf("*Note: Only one model (%s) provided a successful response.*\n\n%s", r.Provider, r.Text),
			Model:          r.Provider,
			Tokens:         r.Tokens,
			Cost:           r.Cost,
			LatencySeconds: time.Since(start).Seconds(),
			Timestamp:      now,
			Contributions:  map[string]string{r.Provider: "Sole contributor"},
			SoleText:       r.Text,
		}
	}

	log := zap.L().With(zap.String("model", synthesisModel), zap.Int("responses", len(ok)))
	log.Info("synthesis: synthesizing responses")

	resp := e.caller.CallOne(ctx, synthesisModel, BuildPrompt(question, ok), orchestrator.Params{
		System:      systemPrompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Timeout:     e.timeout,
		MaxRetries:  1,
	})
	elapsed := time.Since(start)

	if !resp.Success {
		answer := "Synthesis failed: " + resp.Error
		if resp.ErrorKind == string(provider.KindTimeout) {
			answer = TimeoutAnswer
		}
		log.Error("synthesis: call failed", zap.String("kind", resp.ErrorKind), zap.String("error", resp.Error))
		return model.SynthesisResult{
			Answer:         answer,
			Model:          synthesisModel,
			LatencySeconds: elapsed.Seconds(),
			Timestamp:      now,
			Failed:         true,
		}
	}

	log.Info("synthesis: complete",
		zap.Duration("elapsed", elapsed),
		zap.Int("total_tokens", resp.Tokens.Total),
	)
	return model.SynthesisResult{
		Answer:         resp.Text,
		Model:          synthesisModel,
		Tokens:         resp.Tokens,
		Cost:           resp.Cost,
		LatencySeconds: roundMillis(elapsed),
		Timestamp:      now,
		Contributions:  Contributions(ok),
	}
}

// BuildPrompt formats the fusion prompt over the successful responses.
func BuildPrompt(question string, responses []model.ProviderResponse) string {
	parts := make([]string, 0, len(responses))
	for i, r := range responses {
		parts = append(parts, fmt.Sprintf("### Model %d: %s\n*Response time: %.2fs | Tokens: %d*\n\n%s\n",
			i+1, r.Provider, r.LatencySeconds, r.Tokens.Total, r.Text))
	}
	return fmt.Sprintf(promptTemplate, question, strings.Join(parts, "\n---\n\n"))
}

// Contributions summarizes what each response added.
func Contributions(responses []model.ProviderResponse) map[string]string {
	out := make(map[string]string, len(responses))
	for _, r := range responses {
		out[r.Provider] = fmt.Sprintf("Provided %d words in %.2fs", len(strings.Fields(r.Text)), r.LatencySeconds)
	}
	return out
}

func usable(responses []model.ProviderResponse) []model.ProviderResponse {
	out := make([]model.ProviderResponse, 0, len(responses))
	for _, r := range responses {
		if r.Success && r.Text != "" {
			out = append(out, r)
		}
	}
	return out
}

func roundMillis(d time.Duration) float64 {
	return float64(d.Round(time.Millisecond)) / float64(time.Second)
}
