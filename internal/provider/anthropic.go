package provider

import (
	"context"
	"strings"

	"github.com/sells-group/answer-router/internal/cost"
	"github.com/sells-group/answer-router/pkg/anthropic"
)

// Anthropic serves one Claude model.
type Anthropic struct {
	model  string
	client anthropic.Client
	calc   *cost.Calculator
}

// NewAnthropic creates a provider for model. calc may be nil, in which case
// cost attribution logs report zero.
func NewAnthropic(model string, client anthropic.Client, calc *cost.Calculator) *Anthropic {
	return &Anthropic{model: model, client: client, calc: calc}
}

// ID implements Provider.
func (a *Anthropic) ID() string { return a.model }

// Invoke implements Provider.
func (a *Anthropic) Invoke(ctx context.Context, req Request) (*Completion, error) {
	temp := req.Temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   int64(req.MaxTokens),
		System:      req.System,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, Classify(a.model, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, Malformed(a.model, "empty response")
	}

	var usd float64
	if a.calc != nil {
		usd = a.calc.Estimate(a.model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	}
	resp.Usage.LogCost(a.model, "invoke", usd)

	return &Completion{
		Text:             text,
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}
