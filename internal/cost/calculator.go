package cost

import (
	"math"
	"slices"
)

// Rates holds the static pricing table used for every cost estimate.
type Rates struct {
	Models     map[string]ModelRate `yaml:"models" mapstructure:"models"`
	Perplexity PerplexityRate       `yaml:"perplexity" mapstructure:"perplexity"`
	Search     SearchRate           `yaml:"search" mapstructure:"search"`
}

// ModelRate holds per-model token pricing (per thousand tokens) and the
// typical wall-clock latency of one answer.
type ModelRate struct {
	InputPer1K  float64 `yaml:"input_per_1k" mapstructure:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k" mapstructure:"output_per_1k"`
	LatencySecs float64 `yaml:"latency_secs" mapstructure:"latency_secs"`
}

// PerplexityRate holds Perplexity token pricing (per thousand tokens).
type PerplexityRate struct {
	InputPer1K  float64 `yaml:"input_per_1k" mapstructure:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k" mapstructure:"output_per_1k"`
}

// SearchRate holds plain web-search pricing.
type SearchRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// DefaultLatencySecs is assumed for models missing a latency figure.
const DefaultLatencySecs = 3.0

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Estimate returns the cost of a call to model. Unknown models cost 0.
func (c *Calculator) Estimate(model string, input, output int) float64 {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0
	}
	return float64(input)/1000*rate.InputPer1K + float64(output)/1000*rate.OutputPer1K
}

// Has reports whether model is priced.
func (c *Calculator) Has(model string) bool {
	_, ok := c.rates.Models[model]
	return ok
}

// Rate returns the pricing entry for model.
func (c *Calculator) Rate(model string) (ModelRate, bool) {
	r, ok := c.rates.Models[model]
	return r, ok
}

// Latency returns the typical answer latency for model in seconds.
func (c *Calculator) Latency(model string) float64 {
	if r, ok := c.rates.Models[model]; ok && r.LatencySecs > 0 {
		return r.LatencySecs
	}
	return DefaultLatencySecs
}

// Models returns the priced model IDs in sorted order.
func (c *Calculator) Models() []string {
	ids := make([]string, 0, len(c.rates.Models))
	for id := range c.rates.Models {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Perplexity computes the cost of a Perplexity chat completion.
func (c *Calculator) Perplexity(input, output int) float64 {
	p := c.rates.Perplexity
	return float64(input)/1000*p.InputPer1K + float64(output)/1000*p.OutputPer1K
}

// SearchQuery returns the flat cost per plain search query.
func (c *Calculator) SearchQuery() float64 {
	return c.rates.Search.PerQuery
}

// Round6 rounds v to six decimal places, the precision costs are reported at.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				InputPer1K: 0.001, OutputPer1K: 0.005, LatencySecs: 1.5,
			},
			"claude-sonnet-4-5-20250929": {
				InputPer1K: 0.003, OutputPer1K: 0.015, LatencySecs: 3.0,
			},
			"claude-opus-4-6": {
				InputPer1K: 0.005, OutputPer1K: 0.025, LatencySecs: 5.0,
			},
			"gemini-2.5-flash": {
				InputPer1K: 0.0003, OutputPer1K: 0.0025, LatencySecs: 2.0,
			},
			"gemini-2.5-pro": {
				InputPer1K: 0.00125, OutputPer1K: 0.01, LatencySecs: 4.5,
			},
		},
		Perplexity: PerplexityRate{InputPer1K: 0.007, OutputPer1K: 0.028},
		Search:     SearchRate{PerQuery: 0.001},
	}
}
