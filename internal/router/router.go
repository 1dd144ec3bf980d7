// Package router runs the primary answer path: temporal detection,
// classification, optional search, routing, provider fan-out and synthesis.
package router

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/answer-router/internal/classify"
	"github.com/sells-group/answer-router/internal/cost"
	"github.com/sells-group/answer-router/internal/model"
	"github.com/sells-group/answer-router/internal/orchestrator"
	"github.com/sells-group/answer-router/internal/routing"
	"github.com/sells-group/answer-router/internal/search"
	"github.com/sells-group/answer-router/internal/synthesis"
	"github.com/sells-group/answer-router/internal/temporal"
)

const fallbackRationale = "Fallback to full ensemble due to routing failure"

// Deps are the services the router drives.
type Deps struct {
	Detector     *temporal.Detector
	Classifier   *classify.Classifier
	Policy       *routing.Engine
	Orchestrator *orchestrator.Orchestrator
	Synthesis    *synthesis.Engine
	// Search is optional. Without it temporal questions get a warning only.
	Search *search.Augmenter
}

// Config controls the router.
type Config struct {
	// EnsembleModels is the default model set of Ensemble. Default: every tier.
	EnsembleModels []string
}

// Router answers questions.
type Router struct {
	detector   *temporal.Detector
	classifier *classify.Classifier
	policy     *routing.Engine
	orch       *orchestrator.Orchestrator
	synth      *synthesis.Engine
	search     *search.Augmenter
	stats      *Stats
	cfg        Config

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a router.
func New(d Deps, cfg Config) *Router {
	if d.Detector == nil {
		d.Detector = temporal.NewDetector()
	}
	if d.Search == nil {
		d.Search = search.New(nil, nil, d.Orchestrator.Calculator(), nil, search.Config{})
	}
	if len(cfg.EnsembleModels) == 0 {
		cfg.EnsembleModels = d.Policy.Tiers().All()
	}
	return &Router{
		detector:   d.Detector,
		classifier: d.Classifier,
		policy:     d.Policy,
		orch:       d.Orchestrator,
		synth:      d.Synthesis,
		search:     d.Search,
		stats:      NewStats(),
		cfg:        cfg,
		nowFunc:    time.Now,
	}
}

// RouteAndAnswer classifies req.Question, calls the routed models and
// returns the final answer with its cost and timing breakdown.
//
// Errors are ErrInvalidRequest, or ErrAllProvidersFailed when the routed
// models and the full-ensemble fallback all failed. In the latter case the
// response is returned too so the failed slots can be inspected.
func (r *Router) RouteAndAnswer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	resp := &AnswerResponse{
		RequestID: uuid.NewString(),
		Question:  req.Question,
		Timestamp: r.nowFunc().UTC(),
		Execution: ExecutionMetrics{ModelExecutionMs: map[string]float64{}},
	}
	log := zap.L().With(zap.String("request_id", resp.RequestID))

	stage := time.Now()
	det := r.detector.Detect(req.Question)
	resp.Temporal = det
	resp.Execution.TemporalDetectionMs = millis(time.Since(stage))
	if det.IsTemporal {
		log.Info("router: temporal query detected",
			zap.String("scope", string(det.Scope)),
			zap.Strings("keywords", det.Keywords),
			zap.Ints("years", det.Years),
		)
	}

	stage = time.Now()
	cls := r.classifier.Classify(ctx, req.Question, &det)
	resp.Classification = cls.Classification
	resp.Execution.ClassificationMs = millis(time.Since(stage))
	if cls.Classification.Fallback {
		resp.FallbackUsed = true
		resp.FallbackReason = "Classification failed: default classification used"
	}

	if det.IsTemporal && det.RequiresCurrentData {
		resp.RoutingOverrideApplied = true
		resp.RoutingOverrideReason = "Temporal query detected: " + det.Reasoning
	}

	question := req.Question
	var searchCost float64
	if det.RequiresCurrentData && req.SearchEnabled() {
		stage = time.Now()
		sr := r.search.Augment(ctx, req.Question)
		resp.Execution.SearchMs = millis(time.Since(stage))
		resp.Search = &sr
		resp.SearchUsed = sr.Used
		resp.UIWarning = sr.Warning
		searchCost = sr.Cost
		question = sr.Augmented(req.Question)
	}

	resp.Routing = r.policy.Route(cls.Classification, routing.Overrides{
		Models:         req.OverrideModels,
		ForceSynthesis: req.ForceSynthesis,
	}, &det)

	params := orchestrator.Params{MaxTokens: req.MaxTokens, Temperature: req.temperature()}

	stage = time.Now()
	responses := r.orch.CallMany(ctx, resp.Routing.Models, question, params)
	if len(model.Successful(responses)) == 0 && ctx.Err() == nil {
		log.Warn("router: every routed model failed, falling back to full ensemble",
			zap.Strings("models", resp.Routing.Models),
		)
		resp.FallbackUsed = true
		resp.FallbackReason = "Model execution failed: every routed model returned an error"
		resp.Routing = r.policy.FullEnsemble(fallbackRationale)
		responses = r.orch.CallMany(ctx, resp.Routing.Models, req.Question, params)
	}
	resp.Execution.ModelStageMs = millis(time.Since(stage))
	for _, pr := range responses {
		resp.Execution.ModelExecutionMs[pr.Provider] = pr.LatencySeconds * 1000
	}
	resp.Responses = responses
	resp.ModelsUsed = resp.Routing.Models

	successes := model.Successful(responses)
	if resp.Routing.UseSynthesis && len(successes) > 1 {
		stage = time.Now()
		syn := r.synth.SynthesizeWith(ctx, resp.Routing.SynthesisModel, req.Question, successes)
		resp.Execution.SynthesisMs = millis(time.Since(stage))
		resp.Synthesis = &syn
	}
	resp.FinalAnswer = r.finalAnswer(resp.Synthesis, successes)

	resp.Cost = r.policy.CostBreakdown(responses, resp.Synthesis, cls.Cost, searchCost)
	resp.Execution.TotalMs = millis(time.Since(start))
	r.stats.Record(resp.Classification.Complexity, resp.Cost, responses, resp.FallbackUsed)

	log.Info("router: route complete",
		zap.String("complexity", string(resp.Classification.Complexity)),
		zap.Strings("models", resp.Routing.Models),
		zap.Bool("synthesis", resp.Synthesis != nil),
		zap.Bool("temporal", det.IsTemporal),
		zap.Bool("search_used", resp.SearchUsed),
		zap.Float64("cost_usd", resp.Cost.TotalCost),
		zap.Float64("savings_pct", resp.Cost.SavingsPercentage),
		zap.Float64("total_ms", resp.Execution.TotalMs),
	)

	if len(successes) == 0 {
		if err := ctx.Err(); err != nil {
			return resp, eris.Wrap(err, "router: request cancelled")
		}
		return resp, eris.Wrap(ErrAllProvidersFailed, "router: route and answer")
	}
	return resp, nil
}

// finalAnswer prefers a successful synthesis, then the response of the
// highest tier that answered, then any answer at all.
func (r *Router) finalAnswer(syn *model.SynthesisResult, successes []model.ProviderResponse) string {
	if syn != nil && !syn.Failed {
		return syn.Answer
	}
	if len(successes) == 0 {
		return NoAnswer
	}
	t := r.policy.Tiers()
	for _, id := range []string{t.Best, t.Mid, t.Cheap} {
		for _, s := range successes {
			if s.Provider == id {
				return s.Text
			}
		}
	}
	return successes[0].Text
}

// Ensemble calls the requested (or default) models and always synthesizes.
func (r *Router) Ensemble(ctx context.Context, req EnsembleRequest) (*EnsembleResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	models := req.Models
	if len(models) == 0 {
		models = r.cfg.EnsembleModels
	}
	registry := r.orch.Registry()
	for _, m := range models {
		if !registry.Has(m) {
			return nil, eris.Wrapf(ErrInvalidRequest, "router: unknown model %q, available: %v", m, registry.IDs())
		}
	}

	start := time.Now()
	id := uuid.NewString()
	log := zap.L().With(zap.String("request_id", id))
	log.Info("router: ensemble query", zap.Strings("models", models))

	temp := DefaultTemperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	responses := r.orch.CallMany(ctx, models, req.Question, orchestrator.Params{MaxTokens: req.MaxTokens, Temperature: temp})
	successes := model.Successful(responses)
	if len(successes) == 0 {
		log.Error("router: every ensemble model failed")
		return nil, eris.Wrap(ErrAllProvidersFailed, "router: ensemble")
	}

	syn := r.synth.Synthesize(ctx, req.Question, responses)

	total := syn.Cost
	for _, pr := range responses {
		total += pr.Cost
	}
	// A sole contributor's cost is already counted in its response.
	if len(successes) == 1 {
		total -= syn.Cost
	}

	cached := !slices.ContainsFunc(successes, func(pr model.ProviderResponse) bool {
		return pr.CacheStatus != model.CacheHit
	})

	elapsed := time.Since(start)
	log.Info("router: ensemble complete", zap.Duration("elapsed", elapsed), zap.Float64("cost_usd", total))
	return &EnsembleResponse{
		RequestID:        id,
		Question:         req.Question,
		Responses:        responses,
		Synthesis:        syn,
		TotalCost:        cost.Round6(total),
		TotalTimeSeconds: round(elapsed.Seconds(), 3),
		Timestamp:        r.nowFunc().UTC(),
		Cached:           cached,
	}, nil
}

// Synthesize merges caller-supplied responses.
func (r *Router) Synthesize(ctx context.Context, req SynthesisRequest) (*model.SynthesisResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	zap.L().Info("router: synthesis request", zap.Int("responses", len(req.Responses)))
	res := r.synth.SynthesizeWith(ctx, req.SynthesisModel, req.Question, req.Responses)
	return &res, nil
}

// Models lists the registered models with their pricing and tier.
func (r *Router) Models() ModelsResponse {
	registry := r.orch.Registry()
	calc := r.orch.Calculator()
	tiers := r.policy.Tiers()
	configured := registry.Configured()

	ids := registry.IDs()
	out := make([]ModelInfo, 0, len(ids))
	for _, id := range ids {
		info := ModelInfo{
			ID:             id,
			Tier:           tiers.Label(id),
			Configured:     slices.Contains(configured, id),
			TypicalLatency: calc.Latency(id),
		}
		if rate, ok := calc.Rate(id); ok {
			info.CostPer1KIn = rate.InputPer1K
			info.CostPer1KOut = rate.OutputPer1K
		}
		out = append(out, info)
	}
	return ModelsResponse{Models: out, DefaultModels: slices.Clone(r.cfg.EnsembleModels), Tiers: tiers}
}

// Stats returns the routing statistics.
func (r *Router) Stats() model.RoutingStats { return r.stats.Snapshot() }

// ResetStats clears the routing statistics.
func (r *Router) ResetStats() { r.stats.Reset() }

// ClearClassificationCache drops every cached classification.
func (r *Router) ClearClassificationCache() {
	r.classifier.ClearCache()
	zap.L().Info("router: classification cache cleared")
}

// SearchProviders names the configured search stages.
func (r *Router) SearchProviders() []string { return r.search.Providers() }

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
