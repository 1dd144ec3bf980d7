// Package timetravel answers a question as of several past dates in parallel
// and summarizes how the answer evolved. A streaming variant emits each
// artifact as soon as it exists.
package timetravel

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/answer-router/internal/cache"
	"github.com/sells-group/answer-router/internal/cost"
	"github.com/sells-group/answer-router/internal/model"
	"github.com/sells-group/answer-router/internal/orchestrator"
	"github.com/sells-group/answer-router/internal/temporal"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultMaxSnapshots        = 5
	DefaultConcurrency         = 5
	DefaultSnapshotTimeout     = 45 * time.Second
	DefaultSimilarityThreshold = 0.85
	DefaultShallowAnswerChars  = 400
	DefaultStreamBuffer        = 32
	DefaultHeartbeatInterval   = 10 * time.Second

	auxTimeout          = 30 * time.Second
	snapshotTemperature = 0.5
	terminalGrace       = time.Second
)

// Skip reasons for ineligible questions.
const (
	DisabledReason  = "Time-travel is disabled."
	IdenticalReason = "Answers do not change significantly over time. No temporal evolution detected."
)

// Caller is the part of the orchestrator the engine needs.
type Caller interface {
	CallOne(ctx context.Context, providerID, question string, p orchestrator.Params) model.ProviderResponse
}

// Config controls the engine.
type Config struct {
	Enabled             bool
	MaxSnapshots        int
	Concurrency         int64
	SnapshotTimeout     time.Duration
	SimilarityThreshold float64
	ShallowAnswerChars  int
	StreamBuffer        int
	HeartbeatInterval   time.Duration
	Tiers               model.Tiers
}

// Engine runs time-travel analyses. The snapshot permit is shared by every
// in-flight run.
type Engine struct {
	caller    Caller
	timelines *Timelines
	results   *cache.TTL[model.TimeTravelResult]
	sem       *semaphore.Weighted
	cfg       Config

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCache creates the result cache.
func NewCache(cfg cache.Config) (*cache.TTL[model.TimeTravelResult], error) {
	return cache.New[model.TimeTravelResult]("timetravel", cfg)
}

// New creates an engine. results may be nil to disable result caching.
func New(caller Caller, timelines *Timelines, results *cache.TTL[model.TimeTravelResult], cfg Config) *Engine {
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = DefaultMaxSnapshots
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = DefaultSnapshotTimeout
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.ShallowAnswerChars <= 0 {
		cfg.ShallowAnswerChars = DefaultShallowAnswerChars
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = DefaultStreamBuffer
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Tiers == (model.Tiers{}) {
		cfg.Tiers = model.DefaultTiers()
	}
	if timelines == nil {
		// The embedded catalogue is validated by tests.
		timelines, _ = LoadTimelines("")
	}
	return &Engine{
		caller:    caller,
		timelines: timelines,
		results:   results,
		sem:       semaphore.NewWeighted(cfg.Concurrency),
		cfg:       cfg,
		nowFunc:   time.Now,
	}
}

// Enabled reports whether time travel runs without being forced.
func (e *Engine) Enabled() bool { return e.cfg.Enabled }

// ClearCache drops every cached result.
func (e *Engine) ClearCache() {
	if e.results != nil {
		e.results.Clear()
	}
}

// Run performs a full analysis. force skips the enabled and sensitivity
// gates. The only error is cancellation of ctx.
func (e *Engine) Run(ctx context.Context, question string, force bool) (*model.TimeTravelResult, error) {
	return e.run(ctx, question, force, func(model.Event) {})
}

// Stream performs the analysis in a producer goroutine and emits events in
// the order start, classification, snapshot (completion order), narrative,
// insight, timing, complete. Exactly one complete or error event is sent
// last, then the channel is closed. Cancelling ctx stops the run.
func (e *Engine) Stream(ctx context.Context, question string, force bool) <-chan model.Event {
	ch := make(chan model.Event, e.cfg.StreamBuffer)

	go func() {
		defer close(ch)

		emit := func(ev model.Event) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}

		var terminal model.Event
		res, err := e.run(ctx, question, force, emit)
		if err != nil {
			terminal = model.NewEvent(model.EventError, map[string]any{"error": err.Error()})
		} else {
			terminal = model.NewEvent(model.EventComplete, map[string]any{
				"success":     true,
				"is_eligible": res.IsEligible,
				"skip_reason": res.SkipReason,
				"result":      res,
			})
		}

		// The consumer may already be gone.
		select {
		case ch <- terminal:
		case <-time.After(terminalGrace):
			zap.L().Debug("timetravel: terminal event dropped")
		}
	}()

	return ch
}

func (e *Engine) run(ctx context.Context, question string, force bool, emit func(model.Event)) (*model.TimeTravelResult, error) {
	start := time.Now()
	log := zap.L().With(zap.Bool("force", force))

	emit(model.NewEvent(model.EventStart, map[string]any{
		"question": question,
		"message":  "Starting time-travel analysis...",
	}))

	sensitivity, reasoning := temporal.ClassifySensitivity(question)
	if !e.cfg.Enabled && !force {
		return ineligible(question, sensitivity, reasoning, DisabledReason, start), nil
	}

	if !sensitivity.Eligible() && !force {
		return ineligible(question, sensitivity, reasoning,
			fmt.Sprintf("%s temporal sensitivity - time-travel not applicable. %s", sensitivity, reasoning), start), nil
	}

	// Cached results are only served past the gate, so a forced run is never
	// replayed to an unforced request.
	key := cache.Key("timetravel", cache.Normalize(question))
	if e.results != nil {
		if hit, ok := e.results.Get(key); ok {
			log.Info("timetravel: cache hit")
			hit.Cached = true
			e.replay(&hit, emit)
			return &hit, nil
		}
	}

	complexity, complexityReason := ClassifyComplexity(question)
	snapshotModel := e.cfg.Tiers.Single(complexity)
	points := Select(e.timelines.For(question, e.nowFunc()), e.cfg.MaxSnapshots)
	if len(points) == 0 {
		return nil, eris.New("timetravel: no time points for question")
	}

	labels := make([]string, len(points))
	for i, p := range points {
		labels[i] = p.Label
	}
	log.Info("timetravel: classified",
		zap.String("sensitivity", string(sensitivity)),
		zap.String("complexity", string(complexity)),
		zap.String("model", snapshotModel),
		zap.Int("snapshots", len(points)),
	)
	emit(model.NewEvent(model.EventClassification, map[string]any{
		"sensitivity":       sensitivity,
		"reasoning":         reasoning,
		"complexity":        complexity,
		"complexity_reason": complexityReason,
		"model":             snapshotModel,
		"num_snapshots":     len(points),
		"time_points":       labels,
	}))

	snapStart := time.Now()
	snaps, err := e.snapshots(ctx, question, snapshotModel, complexity, points, emit)
	if err != nil {
		return nil, err
	}
	snapsElapsed := time.Since(snapStart)

	result := &model.TimeTravelResult{
		Question:       question,
		Sensitivity:    sensitivity,
		Reasoning:      reasoning,
		BaseComplexity: complexity,
		Model:          snapshotModel,
		Snapshots:      snaps,
		Insights:       []string{},
		IsEligible:     true,
	}

	if first, last, ok := endpoints(snaps); ok {
		if sim := Similarity(first.Answer, last.Answer); sim > e.cfg.SimilarityThreshold {
			log.Info("timetravel: answers identical across periods", zap.Float64("similarity", sim))
			result.IsEligible = false
			result.Sensitivity = model.SensitivityLow
			result.Reasoning = "Answers identical across periods."
			result.SkipReason = IdenticalReason
			result.TotalCost = snapshotCost(snaps)
			result.TotalTimeSeconds = time.Since(start).Seconds()
			return result, nil
		}
	}

	result.Timing.RoutingWarnings = e.validateRouting(snaps, snapshotModel)

	deltaStart := time.Now()
	var deltaCost float64
	e.withHeartbeat(emit, "Extracting key changes...", func() {
		deltaCost = e.extractDeltas(ctx, snaps)
	})
	deltasElapsed := time.Since(deltaStart)

	narrStart := time.Now()
	var (
		narrative Narrative
		parsed    bool
		narrCost  float64
	)
	e.withHeartbeat(emit, "Generating evolution narrative...", func() {
		narrative, parsed, narrCost = e.narrate(ctx, question, snaps)
	})
	narrElapsed := time.Since(narrStart)

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "timetravel: run cancelled")
	}

	result.Narrative = narrative.Narrative
	result.Insights = narrative.Insights
	result.Velocity = narrative.Velocity
	result.Outlook = narrative.Outlook
	result.NarrativeFallback = !parsed
	result.TotalCost = cost.Round6(snapshotCost(snaps) + deltaCost + narrCost)
	result.TotalTimeSeconds = time.Since(start).Seconds()
	result.Timing = timing(snaps, snapsElapsed, deltasElapsed, narrElapsed, time.Since(start), result.Timing.RoutingWarnings)

	e.emitSummary(result, emit)

	if e.results != nil {
		e.results.Set(key, *result)
	}
	log.Info("timetravel: complete",
		zap.Int("snapshots", len(snaps)),
		zap.Int64("total_ms", result.Timing.TotalMs),
		zap.Int64("snapshots_parallel_ms", result.Timing.SnapshotsParallelMs),
		zap.Int64("deltas_ms", result.Timing.DeltasMs),
		zap.Float64("cost_usd", result.TotalCost),
	)
	return result, nil
}

// snapshots answers every time point in parallel and reports each as it
// completes. The returned slice is in chronological (input) order.
func (e *Engine) snapshots(ctx context.Context, question, snapshotModel string, c model.Complexity, points []TimePoint, emit func(model.Event)) ([]model.TimeSnapshot, error) {
	type done struct {
		i    int
		snap model.TimeSnapshot
	}
	results := make(chan done, len(points))

	var g errgroup.Group
	for i, p := range points {
		g.Go(func() error {
			results <- done{i: i, snap: e.snapshot(ctx, question, snapshotModel, c, p)}
			return nil
		})
	}

	out := make([]model.TimeSnapshot, len(points))
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for completed := 0; completed < len(points); {
		select {
		case d := <-results:
			out[d.i] = d.snap
			completed++
			emit(model.NewEvent(model.EventSnapshot, map[string]any{
				"index":     completed,
				"total":     len(points),
				"remaining": len(points) - completed,
				"position":  d.i,
				"snapshot":  d.snap,
			}))
		case <-ticker.C:
			emit(model.NewEvent(model.EventHeartbeat, map[string]any{
				"message": fmt.Sprintf("Generating snapshots (%d/%d complete)...", completed, len(points)),
			}))
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "timetravel: run cancelled")
	}
	return out, nil
}

func (e *Engine) snapshot(ctx context.Context, question, snapshotModel string, c model.Complexity, p TimePoint) model.TimeSnapshot {
	snap := model.TimeSnapshot{
		At:         p.At,
		Label:      p.Label,
		Model:      snapshotModel,
		KeyChanges: []string{},
		DataPoints: []string{},
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		snap.Answer = "Unable to generate snapshot: " + err.Error()
		snap.Failed = true
		return snap
	}
	defer e.sem.Release(1)

	date := p.At.Format("January 02, 2006")
	resp := e.caller.CallOne(ctx, snapshotModel, snapshotPrompt(question, date), orchestrator.Params{
		System:      snapshotSystemPrompt(date),
		MaxTokens:   snapshotMaxTokens(c),
		Temperature: snapshotTemperature,
		Timeout:     e.cfg.SnapshotTimeout,
	})
	snap.LatencySeconds = resp.LatencySeconds
	if !resp.Success {
		zap.L().Warn("timetravel: snapshot failed", zap.String("label", p.Label), zap.String("error", resp.Error))
		snap.Answer = "Unable to generate snapshot: " + resp.Error
		snap.Failed = true
		return snap
	}

	snap.Answer = resp.Text
	snap.Tokens = resp.Tokens.Total
	snap.Cost = resp.Cost
	snap.DataPoints = DataPoints(resp.Text)
	return snap
}

func snapshotMaxTokens(c model.Complexity) int {
	switch c {
	case model.ComplexitySimple:
		return 800
	case model.ComplexityComplex:
		return 1500
	default:
		return 1200
	}
}

// extractDeltas sets KeyChanges on snapshots 2..n from one batched call and
// returns its cost. A failed call leaves the changes empty.
func (e *Engine) extractDeltas(ctx context.Context, snaps []model.TimeSnapshot) float64 {
	if len(snaps) < 2 {
		return 0
	}
	resp := e.caller.CallOne(ctx, e.cfg.Tiers.Cheap, deltaPrompt(snaps), orchestrator.Params{
		System:      deltaSystemPrompt,
		MaxTokens:   500,
		Temperature: 0.3,
		Timeout:     auxTimeout,
	})
	if !resp.Success {
		zap.L().Warn("timetravel: key change extraction failed", zap.String("error", resp.Error))
		return 0
	}

	transitions := ParseDeltas(resp.Text)
	for i := 1; i < len(snaps); i++ {
		if i-1 < len(transitions) {
			snaps[i].KeyChanges = transitions[i-1]
		}
	}
	return resp.Cost
}

// narrate summarizes the timeline. ok is false when a fallback narrative
// was used.
func (e *Engine) narrate(ctx context.Context, question string, snaps []model.TimeSnapshot) (Narrative, bool, float64) {
	if succeeded(snaps) < 2 {
		return Narrative{
			Narrative: "Not enough snapshots to describe an evolution.",
			Insights:  []string{},
			Velocity:  model.VelocityModerate,
		}, false, 0
	}

	resp := e.caller.CallOne(ctx, e.cfg.Tiers.Mid, narrativePrompt(question, snaps), orchestrator.Params{
		System:      narrativeSystemPrompt,
		MaxTokens:   600,
		Temperature: 0.5,
		Timeout:     auxTimeout,
	})
	if !resp.Success {
		zap.L().Warn("timetravel: narrative failed", zap.String("error", resp.Error))
		return Narrative{
			Narrative: "Unable to generate narrative: " + resp.Error,
			Insights:  []string{},
			Velocity:  model.VelocityModerate,
		}, false, 0
	}

	n, ok := ParseNarrative(resp.Text)
	if !ok {
		zap.L().Warn("timetravel: narrative not structured, using raw text")
	}
	return n, ok, resp.Cost
}

// validateRouting flags a snapshot model that produced mostly shallow answers.
func (e *Engine) validateRouting(snaps []model.TimeSnapshot, snapshotModel string) []string {
	var ok, shallow int
	for _, s := range snaps {
		if s.Failed {
			continue
		}
		ok++
		if len([]rune(s.Answer)) < e.cfg.ShallowAnswerChars {
			shallow++
		}
	}
	if ok == 0 || shallow*2 <= ok {
		return nil
	}

	msg := fmt.Sprintf("%d of %d snapshots from %s are shorter than %d characters", shallow, ok, snapshotModel, e.cfg.ShallowAnswerChars)
	zap.L().Warn("timetravel: shallow snapshot answers", zap.String("model", snapshotModel), zap.Int("shallow", shallow), zap.Int("total", ok))
	return []string{msg}
}

// withHeartbeat runs fn, emitting heartbeats until it returns.
func (e *Engine) withHeartbeat(emit func(model.Event), msg string, fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			emit(model.NewEvent(model.EventHeartbeat, map[string]any{"message": msg}))
		}
	}
}

// emitSummary sends the narrative, insight and timing events of a finished run.
func (e *Engine) emitSummary(r *model.TimeTravelResult, emit func(model.Event)) {
	emit(model.NewEvent(model.EventNarrative, map[string]any{
		"narrative": r.Narrative,
		"velocity":  r.Velocity,
		"outlook":   r.Outlook,
		"fallback":  r.NarrativeFallback,
	}))
	for i, insight := range r.Insights {
		emit(model.NewEvent(model.EventInsight, map[string]any{
			"index":   i + 1,
			"total":   len(r.Insights),
			"insight": insight,
		}))
	}
	emit(model.NewEvent(model.EventTiming, map[string]any{"timing": r.Timing}))
}

// replay emits the events of a cached result.
func (e *Engine) replay(r *model.TimeTravelResult, emit func(model.Event)) {
	labels := make([]string, len(r.Snapshots))
	for i, s := range r.Snapshots {
		labels[i] = s.Label
	}
	emit(model.NewEvent(model.EventClassification, map[string]any{
		"sensitivity":   r.Sensitivity,
		"reasoning":     r.Reasoning,
		"complexity":    r.BaseComplexity,
		"model":         r.Model,
		"num_snapshots": len(r.Snapshots),
		"time_points":   labels,
		"cached":        true,
	}))
	for i, s := range r.Snapshots {
		emit(model.NewEvent(model.EventSnapshot, map[string]any{
			"index":     i + 1,
			"total":     len(r.Snapshots),
			"remaining": len(r.Snapshots) - i - 1,
			"position":  i,
			"snapshot":  s,
		}))
	}
	e.emitSummary(r, emit)
}

func ineligible(question string, s model.Sensitivity, reasoning, reason string, start time.Time) *model.TimeTravelResult {
	zap.L().Info("timetravel: question not eligible", zap.String("reason", reason))
	return &model.TimeTravelResult{
		Question:         question,
		Sensitivity:      s,
		Reasoning:        reasoning,
		Snapshots:        []model.TimeSnapshot{},
		Insights:         []string{},
		IsEligible:       false,
		SkipReason:       reason,
		TotalTimeSeconds: time.Since(start).Seconds(),
	}
}

// endpoints returns the first and last successful snapshots.
func endpoints(snaps []model.TimeSnapshot) (first, last model.TimeSnapshot, ok bool) {
	fi, li := -1, -1
	for i, s := range snaps {
		if s.Failed {
			continue
		}
		if fi < 0 {
			fi = i
		}
		li = i
	}
	if fi < 0 || fi == li {
		return first, last, false
	}
	return snaps[fi], snaps[li], true
}

func succeeded(snaps []model.TimeSnapshot) int {
	var n int
	for _, s := range snaps {
		if !s.Failed {
			n++
		}
	}
	return n
}

func snapshotCost(snaps []model.TimeSnapshot) float64 {
	var total float64
	for _, s := range snaps {
		total += s.Cost
	}
	return cost.Round6(total)
}

func timing(snaps []model.TimeSnapshot, snapsElapsed, deltas, narrative, total time.Duration, warnings []string) model.TimeTravelTiming {
	t := model.TimeTravelTiming{
		TotalMs:             total.Milliseconds(),
		SnapshotsParallelMs: snapsElapsed.Milliseconds(),
		DeltasMs:            deltas.Milliseconds(),
		NarrativeMs:         narrative.Milliseconds(),
		RoutingWarnings:     warnings,
	}

	var sequential, slowest int64
	for _, s := range snaps {
		ms := int64(s.LatencySeconds * 1000)
		sequential += ms
		if ms > slowest {
			slowest, t.Bottleneck = ms, "snapshot:"+s.Label
		}
	}
	if t.DeltasMs > slowest {
		slowest, t.Bottleneck = t.DeltasMs, "deltas"
	}
	if t.NarrativeMs > slowest {
		t.Bottleneck = "narrative"
	}

	t.SequentialEstimateMs = sequential + t.DeltasMs + t.NarrativeMs
	t.SavingsMs = max(0, t.SequentialEstimateMs-t.TotalMs)
	return t
}
