// Package orchestrator invokes providers with caching, retries, per-provider
// circuit breakers and a process-wide concurrency permit.
package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/answer-router/internal/cache"
	"github.com/sells-group/answer-router/internal/cost"
	"github.com/sells-group/answer-router/internal/model"
	"github.com/sells-group/answer-router/internal/provider"
	"github.com/sells-group/answer-router/internal/resilience"
)

// Defaults applied when Params or Config leave a field zero.
const (
	DefaultMaxTokens      = 2000
	DefaultTemperature    = 0.7
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultMaxConcurrent  = 10
)

// Params are the per-call generation settings.
type Params struct {
	System      string
	MaxTokens   int
	Temperature float64
	// Timeout bounds each attempt, not the whole call.
	Timeout    time.Duration
	MaxRetries int
}

// Config holds the orchestrator-wide settings.
type Config struct {
	MaxConcurrent  int64
	RequestTimeout time.Duration
	MaxRetries     int
	Breaker        resilience.CircuitBreakerConfig
}

// Recorder receives the latency of every provider call.
type Recorder interface {
	Record(operation string, d time.Duration, success bool)
}

// CachedResponse is the cached part of a successful provider response.
type CachedResponse struct {
	Text   string
	Tokens model.TokenUsage
	Cost   float64
}

// Orchestrator calls providers from a registry.
type Orchestrator struct {
	registry *provider.Registry
	breakers *resilience.ServiceBreakers
	cache    *cache.TTL[CachedResponse]
	calc     *cost.Calculator
	sem      *semaphore.Weighted
	cfg      Config
	recorder Recorder

	// backoff picks the delay after a failed attempt. Replaced in tests.
	backoff func(attempt int, err error) time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder reports call latencies to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithBackoff replaces the retry delay schedule.
func WithBackoff(fn func(attempt int, err error) time.Duration) Option {
	return func(o *Orchestrator) { o.backoff = fn }
}

// New creates an orchestrator. responses may be nil to disable response caching.
func New(registry *provider.Registry, responses *cache.TTL[CachedResponse], calc *cost.Calculator, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Breaker.ShouldTrip == nil {
		cfg.Breaker.ShouldTrip = tripsBreaker
	}
	if calc == nil {
		calc = cost.NewCalculator(cost.Rates{})
	}

	o := &Orchestrator{
		registry: registry,
		breakers: resilience.NewServiceBreakers(cfg.Breaker),
		cache:    responses,
		calc:     calc,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:      cfg,
		backoff:  defaultBackoff,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewResponseCache creates the cache used for provider responses.
func NewResponseCache(cfg cache.Config) (*cache.TTL[CachedResponse], error) {
	return cache.New[CachedResponse]("responses", cfg)
}

// Registry returns the provider registry.
func (o *Orchestrator) Registry() *provider.Registry { return o.registry }

// Calculator returns the cost table used for response costs.
func (o *Orchestrator) Calculator() *cost.Calculator { return o.calc }

// BreakerStates returns a snapshot of every provider circuit breaker.
func (o *Orchestrator) BreakerStates() map[string]resilience.BreakerSnapshot {
	return o.breakers.Snapshots()
}

// OpenCircuits returns the providers whose breakers currently reject calls.
func (o *Orchestrator) OpenCircuits() []string {
	return o.breakers.Open()
}

// ClearCache drops every cached provider response.
func (o *Orchestrator) ClearCache() {
	if o.cache != nil {
		o.cache.Clear()
	}
}

// CacheStats reports response cache usage.
func (o *Orchestrator) CacheStats() cache.Stats {
	if o.cache == nil {
		return cache.Stats{Name: "responses"}
	}
	return o.cache.Stats()
}

// CallOne invokes providerID once, with retries. It never returns an error:
// any failure is reported in the returned response.
func (o *Orchestrator) CallOne(ctx context.Context, providerID, question string, p Params) model.ProviderResponse {
	p = o.withDefaults(p)
	start := time.Now()
	log := zap.L().With(zap.String("provider", providerID))

	key := responseKey(providerID, question, p)
	if o.cache != nil {
		if hit, ok := o.cache.Get(key); ok {
			log.Debug("orchestrator: cache hit")
			elapsed := time.Since(start)
			o.record(providerID, elapsed, true)
			return model.ProviderResponse{
				Provider:       providerID,
				Text:           hit.Text,
				Tokens:         hit.Tokens,
				Cost:           hit.Cost,
				LatencySeconds: elapsed.Seconds(),
				Timestamp:      time.Now().UTC(),
				CacheStatus:    model.CacheHit,
				Success:        true,
			}
		}
	}

	prov, ok := o.registry.Get(providerID)
	if !ok {
		err := provider.Unavailable(providerID, "unknown provider")
		log.Warn("orchestrator: unknown provider")
		o.record(providerID, time.Since(start), false)
		failed := model.FailedResponse(providerID, err.Error(), time.Since(start))
		failed.ErrorKind = string(provider.KindUnavailable)
		return failed
	}

	breaker := o.breakers.Get(providerID)
	req := provider.Request{
		System:      p.System,
		Prompt:      question,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	}

	retry := resilience.FromRetryConfig(p.MaxRetries)
	retry.ShouldRetry = retryable
	retry.Backoff = o.backoff
	retry.MaxBackoff = time.Minute
	retry.OnRetry = resilience.RetryLogger(providerID, "invoke")

	completion, err := resilience.Do(ctx, retry, func(ctx context.Context) (*provider.Completion, error) {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return nil, provider.Classify(providerID, err)
		}
		defer o.sem.Release(1)

		attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()

		c, err := resilience.ExecuteVal(attemptCtx, breaker, func(ctx context.Context) (*provider.Completion, error) {
			c, err := prov.Invoke(ctx, req)
			if err != nil {
				return nil, provider.Classify(providerID, err)
			}
			if c == nil || c.Text == "" {
				return nil, provider.Malformed(providerID, "empty response")
			}
			return c, nil
		})
		if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, provider.Classify(providerID, context.DeadlineExceeded)
		}
		return c, err
	})
	elapsed := time.Since(start)

	if err != nil {
		log.Warn("orchestrator: provider call failed",
			zap.String("kind", string(failureKind(err))),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		o.record(providerID, elapsed, false)
		failed := model.FailedResponse(providerID, err.Error(), elapsed)
		failed.ErrorKind = string(failureKind(err))
		return failed
	}

	tokens := model.NewTokenUsage(completion.PromptTokens, completion.CompletionTokens)
	usd := cost.Round6(o.calc.Estimate(providerID, tokens.Prompt, tokens.Completion))

	if o.cache != nil {
		o.cache.Set(key, CachedResponse{Text: completion.Text, Tokens: tokens, Cost: usd})
	}
	o.record(providerID, elapsed, true)

	log.Debug("orchestrator: provider call complete",
		zap.Int("total_tokens", tokens.Total),
		zap.Float64("cost_usd", usd),
		zap.Duration("elapsed", elapsed),
	)

	return model.ProviderResponse{
		Provider:       providerID,
		Text:           completion.Text,
		Tokens:         tokens,
		Cost:           usd,
		LatencySeconds: elapsed.Seconds(),
		Timestamp:      time.Now().UTC(),
		CacheStatus:    model.CacheMiss,
		Success:        true,
	}
}

// CallMany invokes every provider in parallel. The result has one slot per
// input ID in input order, and a failing slot never cancels its siblings.
func (o *Orchestrator) CallMany(ctx context.Context, providerIDs []string, question string, p Params) []model.ProviderResponse {
	out := make([]model.ProviderResponse, len(providerIDs))

	var g errgroup.Group
	for i, id := range providerIDs {
		g.Go(func() error {
			out[i] = o.CallOne(ctx, id, question, p)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (o *Orchestrator) withDefaults(p Params) Params {
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.Timeout <= 0 {
		p.Timeout = o.cfg.RequestTimeout
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = o.cfg.MaxRetries
	}
	return p
}

func (o *Orchestrator) record(providerID string, d time.Duration, ok bool) {
	if o.recorder != nil {
		o.recorder.Record("provider:"+providerID, d, ok)
	}
}

func responseKey(providerID, question string, p Params) string {
	return cache.Key(
		providerID,
		cache.Normalize(question),
		p.System,
		strconv.Itoa(p.MaxTokens),
		strconv.FormatFloat(p.Temperature, 'f', -1, 64),
	)
}

func failureKind(err error) provider.Kind {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "circuit_open"
	}
	return provider.KindOf(err)
}

// retryable rejects open circuits, missing providers and caller cancellation.
func retryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	return provider.KindOf(err) != provider.KindUnavailable
}

// tripsBreaker keeps configuration failures and caller cancellation from
// opening a provider's circuit.
func tripsBreaker(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return provider.KindOf(err) != provider.KindUnavailable
}

func defaultBackoff(attempt int, err error) time.Duration {
	if provider.KindOf(err) == provider.KindRateLimited {
		return resilience.ExponentialSeconds(attempt)
	}
	return time.Second
}
