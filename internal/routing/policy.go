// Package routing turns a query classification into a concrete provider set,
// synthesis decision and advisory cost/latency estimate. It performs no I/O.
package routing

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/sells-group/answer-router/internal/cost"
	"github.com/sells-group/answer-router/internal/model"
)

// Token assumptions behind the pre-flight estimates.
const (
	estInputTokens     = 500
	estOutputTokens    = 1000
	estSynthesisOutput = 800

	// DefaultTemporalMinModels is the smallest model set for a temporal question.
	DefaultTemporalMinModels = 2

	defaultSynthesisLatency = 4.0
)

// Overrides are caller-supplied routing choices.
type Overrides struct {
	// Models, when non-empty, replaces tier selection entirely.
	Models []string
	// ForceSynthesis, when set, overrides the tier's synthesis default.
	ForceSynthesis *bool
}

// Config controls the policy.
type Config struct {
	Tiers             model.Tiers
	TemporalMinModels int
}

// Engine is the routing policy.
type Engine struct {
	cfg  Config
	calc *cost.Calculator
}

// New creates a policy engine backed by the cost table in calc.
func New(calc *cost.Calculator, cfg Config) *Engine {
	if cfg.Tiers == (model.Tiers{}) {
		cfg.Tiers = model.DefaultTiers()
	}
	if cfg.Tiers.Synthesis == "" {
		cfg.Tiers.Synthesis = cfg.Tiers.Mid
	}
	if cfg.TemporalMinModels <= 0 {
		cfg.TemporalMinModels = DefaultTemporalMinModels
	}
	if calc == nil {
		calc = cost.NewCalculator(cost.Rates{})
	}
	return &Engine{cfg: cfg, calc: calc}
}

// Tiers returns the configured tier models.
func (e *Engine) Tiers() model.Tiers { return e.cfg.Tiers }

// Route picks the providers for a classified question. t may be nil.
func (e *Engine) Route(c model.QueryClassification, o Overrides, t *model.TemporalDetection) model.RoutingDecision {
	var (
		models    []string
		synth     bool
		rationale string
	)

	manual := len(o.Models) > 0
	if manual {
		models = slices.Clone(o.Models)
		synth = len(models) > 1
		rationale = fmt.Sprintf("Manual override: using specified models [%s]", strings.Join(models, ", "))
	} else {
		models = e.cfg.Tiers.For(c.Complexity)
		switch c.Complexity {
		case model.ComplexitySimple:
			rationale = fmt.Sprintf("Simple query (%s, %s): Using single fast model for cost efficiency. %s", c.Intent, c.Domain, c.Reasoning)
		case model.ComplexityComplex:
			synth = true
			rationale = fmt.Sprintf("Complex query (%s, %s): Using all models with synthesis for comprehensive answer. %s", c.Intent, c.Domain, c.Reasoning)
		default:
			rationale = fmt.Sprintf("Moderate query (%s, %s): Using two models for balanced quality. %s", c.Intent, c.Domain, c.Reasoning)
		}
	}

	decision := model.RoutingDecision{}

	if t != nil && t.IsTemporal {
		minModels := e.cfg.TemporalMinModels
		decision.MinModelsForTemporal = &minModels
		if len(models) < minModels {
			models = e.pad(models, minModels)
			rationale += fmt.Sprintf(" [TEMPORAL: Added models to meet minimum %d for temporal queries]", minModels)
		}
		if t.RequiresCurrentData {
			decision.AddWebSearch = true
			rationale += " [TEMPORAL: Web search recommended for current data]"
		}
	}

	if o.ForceSynthesis != nil {
		synth = *o.ForceSynthesis
	}
	if len(models) < 2 {
		synth = false
	}

	decision.Models = models
	decision.UseSynthesis = synth
	if synth {
		decision.SynthesisModel = e.cfg.Tiers.Synthesis
	}
	decision.EstimatedCost = e.EstimateCost(models, synth)
	decision.EstimatedTimeSeconds = e.EstimateTime(models, synth)
	decision.Rationale = rationale
	return decision
}

// FullEnsemble is the fallback route: every tier model with synthesis forced.
func (e *Engine) FullEnsemble(rationale string) model.RoutingDecision {
	models := e.cfg.Tiers.All()
	synth := len(models) > 1
	d := model.RoutingDecision{
		Models:               models,
		UseSynthesis:         synth,
		EstimatedCost:        e.EstimateCost(models, synth),
		EstimatedTimeSeconds: e.EstimateTime(models, synth),
		Rationale:            rationale,
	}
	if synth {
		d.SynthesisModel = e.cfg.Tiers.Synthesis
	}
	return d
}

// pad appends tier models not already present until models has n entries
// or the tiers run out. Existing entries are never dropped.
func (e *Engine) pad(models []string, n int) []string {
	t := e.cfg.Tiers
	for _, m := range []string{t.Mid, t.Cheap, t.Best} {
		if len(models) >= n {
			break
		}
		if m != "" && !slices.Contains(models, m) {
			models = append(models, m)
		}
	}
	return models
}

// EstimateCost is the advisory cost of calling models, plus synthesis.
func (e *Engine) EstimateCost(models []string, synth bool) float64 {
	var total float64
	for _, m := range models {
		total += e.calc.Estimate(m, estInputTokens, estOutputTokens)
	}
	if synth {
		total += e.synthesisEstimate(len(models))
	}
	return cost.Round6(total)
}

// EstimateTime is the advisory wall-clock time: models run in parallel, so
// the slowest one counts, followed by synthesis.
func (e *Engine) EstimateTime(models []string, synth bool) float64 {
	var slowest float64
	for _, m := range models {
		slowest = max(slowest, e.calc.Latency(m))
	}
	if synth {
		slowest += e.synthesisLatency()
	}
	return slowest
}

// FullEnsembleCost is the advisory cost of every tier plus synthesis.
func (e *Engine) FullEnsembleCost() float64 {
	models := e.cfg.Tiers.For(model.ComplexityComplex)
	var total float64
	for _, m := range models {
		total += e.calc.Estimate(m, estInputTokens, estOutputTokens)
	}
	return cost.Round6(total + e.synthesisEstimate(len(models)))
}

// CostBreakdown itemizes what a routed answer actually cost and compares it
// with the full ensemble.
func (e *Engine) CostBreakdown(responses []model.ProviderResponse, synth *model.SynthesisResult, classificationCost, searchCost float64) model.CostBreakdown {
	modelCosts := make(map[string]float64, len(responses))
	var total float64
	for _, r := range responses {
		modelCosts[r.Provider] += r.Cost
		total += r.Cost
	}

	var synthCost float64
	if synth != nil {
		synthCost = synth.Cost
	}
	total += synthCost + classificationCost + searchCost

	full := e.FullEnsembleCost()
	savings := max(0, full-total)
	var pct float64
	if full > 0 {
		pct = math.Round(savings/full*100*100) / 100
	}

	return model.CostBreakdown{
		ClassificationCost: cost.Round6(classificationCost),
		SearchCost:         cost.Round6(searchCost),
		ModelCosts:         modelCosts,
		SynthesisCost:      cost.Round6(synthCost),
		TotalCost:          cost.Round6(total),
		FullEnsembleCost:   full,
		Savings:            cost.Round6(savings),
		SavingsPercentage:  pct,
	}
}

func (e *Engine) synthesisEstimate(n int) float64 {
	return e.calc.Estimate(e.cfg.Tiers.Synthesis, estOutputTokens*n+500, estSynthesisOutput)
}

func (e *Engine) synthesisLatency() float64 {
	if r, ok := e.calc.Rate(e.cfg.Tiers.Synthesis); ok && r.LatencySecs > 0 {
		return r.LatencySecs
	}
	return defaultSynthesisLatency
}
