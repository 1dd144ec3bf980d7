package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/answer-router/internal/config"
	"github.com/sells-group/answer-router/internal/cost"
	"github.com/sells-group/answer-router/internal/model"
	"github.com/sells-group/answer-router/internal/provider"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "ask", "timetravel"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "answer-router", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestAskCommand_Flags(t *testing.T) {
	for _, name := range []string{"models", "no-search", "synthesis", "max-tokens"} {
		assert.NotNil(t, askCmd.Flags().Lookup(name), "ask command should have --%s", name)
	}
	assert.NotNil(t, timeTravelCmd.Flags().Lookup("force"))
	assert.NotNil(t, timeTravelCmd.Flags().Lookup("stream"))
}

func TestAskRequest(t *testing.T) {
	t.Cleanup(func() {
		askModels, askNoSearch, askSynthesis, askMaxTokens = nil, false, false, 0
	})

	req := askRequest("q", false)
	assert.Nil(t, req.EnableSearch)
	assert.Nil(t, req.ForceSynthesis)

	askModels = []string{"claude-opus-4-6"}
	askNoSearch = true
	askSynthesis = false
	askMaxTokens = 500
	req = askRequest("q", true)
	require.NotNil(t, req.EnableSearch)
	assert.False(t, *req.EnableSearch)
	require.NotNil(t, req.ForceSynthesis)
	assert.False(t, *req.ForceSynthesis)
	assert.Equal(t, 500, req.MaxTokens)
	assert.Equal(t, []string{"claude-opus-4-6"}, req.OverrideModels)
}

func TestStreamEvents(t *testing.T) {
	events := make(chan model.Event, 3)
	events <- model.NewEvent(model.EventStart, nil)
	events <- model.NewEvent(model.EventError, map[string]any{"error": "context canceled"})
	close(events)

	var buf bytes.Buffer
	err := streamEvents(&buf, events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 2)
}

func TestBuildSources_MissingKeys(t *testing.T) {
	c := testConfig()
	c.Gemini.Models = []string{"gemini-2.5-flash"}

	src, err := buildSources(context.Background(), c, cost.NewCalculator(cost.DefaultRates()))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"claude-haiku-4-5-20251001",
		"claude-sonnet-4-5-20250929",
		"claude-opus-4-6",
		"gemini-2.5-flash",
	}, src.registry.IDs())
	assert.Empty(t, src.registry.Configured())
	assert.Nil(t, src.reasoner)
	assert.Nil(t, src.searcher)
}

func TestBuildSources_WithKeys(t *testing.T) {
	c := testConfig()
	c.Anthropic.Key = "sk-ant-test"
	c.Perplexity.Key = "pplx-test"
	c.Jina.Key = "jina-test"

	src, err := buildSources(context.Background(), c, cost.NewCalculator(cost.DefaultRates()))
	require.NoError(t, err)
	assert.Len(t, src.registry.Configured(), 3)
	assert.NotNil(t, src.reasoner)
	assert.NotNil(t, src.searcher)

	p, ok := src.registry.Get("claude-opus-4-6")
	require.True(t, ok)
	_, isAnthropic := p.(*provider.Anthropic)
	assert.True(t, isAnthropic)
}

func TestRatesFrom(t *testing.T) {
	rates := ratesFrom(config.PricingConfig{
		Models: map[string]config.ModelPricing{
			"gemini-2.5-flash": {InputPer1K: 0.0004, OutputPer1K: 0.003},
		},
		SearchPerQuery: 0.002,
	})
	assert.InDelta(t, 0.003, rates.Models["gemini-2.5-flash"].OutputPer1K, 1e-9)
	assert.InDelta(t, 0.025, rates.Models["claude-opus-4-6"].OutputPer1K, 1e-9, "defaults kept")
	assert.InDelta(t, 0.002, rates.Search.PerQuery, 1e-9)
	assert.InDelta(t, 0.028, rates.Perplexity.OutputPer1K, 1e-9)
}

func TestTiersFrom(t *testing.T) {
	tiers := tiersFrom(config.ModelsConfig{Best: "claude-sonnet-4-5-20250929"})
	assert.Equal(t, "claude-sonnet-4-5-20250929", tiers.Best)
	assert.Equal(t, model.DefaultTiers().Cheap, tiers.Cheap)
}
