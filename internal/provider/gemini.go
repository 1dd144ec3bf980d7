package provider

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/answer-router/pkg/gemini"
)

// Gemini serves one Gemini model.
type Gemini struct {
	model  string
	client gemini.Client
}

// NewGemini creates a provider for model.
func NewGemini(model string, client gemini.Client) *Gemini {
	return &Gemini{model: model, client: client}
}

// ID implements Provider.
func (g *Gemini) ID() string { return g.model }

// Invoke implements Provider.
func (g *Gemini) Invoke(ctx context.Context, req Request) (*Completion, error) {
	temp := req.Temperature
	resp, err := g.client.Generate(ctx, gemini.GenerateRequest{
		Model:       g.model,
		System:      req.System,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, Classify(g.model, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, Malformed(g.model, "empty response (finish reason "+resp.FinishReason+")")
	}

	zap.L().Debug("provider: gemini completion",
		zap.String("model", g.model),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens),
	)

	return &Completion{
		Text:             resp.Text,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}, nil
}
