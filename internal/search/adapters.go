package search

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/answer-router/pkg/jina"
	"github.com/sells-group/answer-router/pkg/perplexity"
)

const (
	maxSnippetChars = 500

	reasonerSystem = "You are a research assistant. Provide accurate, current information with sources. Be concise but comprehensive."
)

// PerplexityConfig controls the reasoning stage.
type PerplexityConfig struct {
	Model       string
	Recency     string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// DefaultPerplexityConfig returns the reasoning defaults.
func DefaultPerplexityConfig() PerplexityConfig {
	return PerplexityConfig{
		Model:       "sonar",
		Recency:     "month",
		MaxTokens:   1024,
		Temperature: 0.2,
		TopP:        0.9,
	}
}

type perplexityReasoner struct {
	client perplexity.Client
	cfg    PerplexityConfig
}

// NewPerplexityReasoner adapts a Perplexity client to the Reasoner interface.
func NewPerplexityReasoner(client perplexity.Client, cfg PerplexityConfig) Reasoner {
	def := DefaultPerplexityConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Recency == "" {
		cfg.Recency = def.Recency
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.TopP <= 0 {
		cfg.TopP = def.TopP
	}
	return &perplexityReasoner{client: client, cfg: cfg}
}

func (p *perplexityReasoner) Reason(ctx context.Context, query string) (*Reasoning, error) {
	maxTokens := p.cfg.MaxTokens
	temp := p.cfg.Temperature
	topP := p.cfg.TopP

	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []perplexity.Message{
			{Role: "system", Content: reasonerSystem},
			{Role: "user", Content: query},
		},
		Temperature:         &temp,
		MaxTokens:           &maxTokens,
		TopP:                &topP,
		SearchRecencyFilter: p.cfg.Recency,
		ReturnCitations:     true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: perplexity")
	}
	answer := resp.Answer()
	if answer == "" {
		return nil, eris.New("search: perplexity returned an empty answer")
	}

	citations := make([]Hit, 0, len(resp.Citations))
	for _, c := range resp.Citations {
		citations = append(citations, Hit{
			Title:     c.Title,
			URL:       c.URL,
			Snippet:   truncate(c.Snippet, maxSnippetChars),
			Source:    Domain(c.URL),
			Published: c.Date,
		})
	}
	return &Reasoning{
		Answer:           answer,
		Model:            p.cfg.Model,
		Citations:        citations,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

type jinaSearcher struct {
	client jina.Client
}

// NewJinaSearcher adapts a Jina client to the Searcher interface.
func NewJinaSearcher(client jina.Client) Searcher {
	return &jinaSearcher{client: client}
}

func (j *jinaSearcher) Search(ctx context.Context, query string, maxResults int) ([]Hit, error) {
	resp, err := j.client.Search(ctx, query, jina.WithCount(maxResults))
	if err != nil {
		return nil, eris.Wrap(err, "search: jina")
	}

	hits := make([]Hit, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.URL == "" && r.Title == "" {
			continue
		}
		hits = append(hits, Hit{
			Title:     r.Title,
			URL:       r.URL,
			Snippet:   truncate(r.Snippet(), maxSnippetChars),
			Source:    Domain(r.URL),
			Published: r.Published(),
		})
	}
	return hits, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
