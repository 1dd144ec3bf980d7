package main

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/answer-router/internal/cache"
	"github.com/sells-group/answer-router/internal/classify"
	"github.com/sells-group/answer-router/internal/config"
	"github.com/sells-group/answer-router/internal/cost"
	"github.com/sells-group/answer-router/internal/model"
	"github.com/sells-group/answer-router/internal/monitoring"
	"github.com/sells-group/answer-router/internal/orchestrator"
	"github.com/sells-group/answer-router/internal/provider"
	"github.com/sells-group/answer-router/internal/ratelimit"
	"github.com/sells-group/answer-router/internal/resilience"
	"github.com/sells-group/answer-router/internal/router"
	"github.com/sells-group/answer-router/internal/routing"
	"github.com/sells-group/answer-router/internal/search"
	"github.com/sells-group/answer-router/internal/synthesis"
	"github.com/sells-group/answer-router/internal/temporal"
	"github.com/sells-group/answer-router/internal/timetravel"
	"github.com/sells-group/answer-router/pkg/anthropic"
	"github.com/sells-group/answer-router/pkg/gemini"
	"github.com/sells-group/answer-router/pkg/jina"
	"github.com/sells-group/answer-router/pkg/perplexity"
)

// app holds every long-lived service. It is built once per process.
type app struct {
	cfg          *config.Config
	calc         *cost.Calculator
	registry     *provider.Registry
	orch         *orchestrator.Orchestrator
	classifier   *classify.Classifier
	search       *search.Augmenter
	router       *router.Router
	timeTravel   *timetravel.Engine
	collector    *monitoring.Collector
	checker      *monitoring.Checker
	limiter      *ratelimit.SlidingWindow
	providerKeys map[string]bool
}

// sources are the upstream adapters an app is assembled from.
type sources struct {
	registry *provider.Registry
	reasoner search.Reasoner
	searcher search.Searcher
}

// newApp builds the app with real API clients from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	calc := cost.NewCalculator(ratesFrom(cfg.Pricing))
	src, err := buildSources(ctx, cfg, calc)
	if err != nil {
		return nil, err
	}
	return buildApp(cfg, calc, src)
}

// tiersFrom maps the models section onto tier names.
func tiersFrom(m config.ModelsConfig) model.Tiers {
	t := model.DefaultTiers()
	if m.Cheap != "" {
		t.Cheap = m.Cheap
	}
	if m.Mid != "" {
		t.Mid = m.Mid
	}
	if m.Best != "" {
		t.Best = m.Best
	}
	if m.Synthesis != "" {
		t.Synthesis = m.Synthesis
	}
	return t
}

// ratesFrom layers configured prices over the built-in table.
func ratesFrom(p config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	for name, mp := range p.Models {
		rates.Models[name] = cost.ModelRate{
			InputPer1K:  mp.InputPer1K,
			OutputPer1K: mp.OutputPer1K,
			LatencySecs: mp.LatencySecs,
		}
	}
	if p.Perplexity.InputPer1K > 0 || p.Perplexity.OutputPer1K > 0 {
		rates.Perplexity = cost.PerplexityRate{
			InputPer1K:  p.Perplexity.InputPer1K,
			OutputPer1K: p.Perplexity.OutputPer1K,
		}
	}
	if p.SearchPerQuery > 0 {
		rates.Search.PerQuery = p.SearchPerQuery
	}
	return rates
}

// buildSources registers a provider for every tier and Gemini model.
// Models without a key are registered unconfigured so calls fail per slot
// instead of at startup.
func buildSources(ctx context.Context, cfg *config.Config, calc *cost.Calculator) (sources, error) {
	reg := provider.NewRegistry()
	tiers := tiersFrom(cfg.Models)

	claude := tiers.All()
	if !slices.Contains(claude, tiers.Synthesis) {
		claude = append(claude, tiers.Synthesis)
	}
	if cfg.Anthropic.Key != "" {
		var opts []anthropic.Option
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		client := anthropic.NewClient(cfg.Anthropic.Key, opts...)
		for _, m := range claude {
			reg.Register(provider.NewAnthropic(m, client, calc))
		}
	} else {
		for _, m := range claude {
			reg.Register(provider.Unconfigured(m, "anthropic.key is not set"))
		}
	}

	if len(cfg.Gemini.Models) > 0 {
		if cfg.Gemini.Key != "" {
			client, err := gemini.NewClient(ctx, cfg.Gemini.Key)
			if err != nil {
				return sources{}, eris.Wrap(err, "app: gemini client")
			}
			for _, m := range cfg.Gemini.Models {
				reg.Register(provider.NewGemini(m, client))
			}
		} else {
			for _, m := range cfg.Gemini.Models {
				reg.Register(provider.Unconfigured(m, "gemini.key is not set"))
			}
		}
	}

	src := sources{registry: reg}
	if cfg.Perplexity.Key != "" {
		opts := []perplexity.Option{perplexity.WithRateLimit(cfg.Perplexity.RPS)}
		if cfg.Perplexity.BaseURL != "" {
			opts = append(opts, perplexity.WithBaseURL(cfg.Perplexity.BaseURL))
		}
		if cfg.Perplexity.Model != "" {
			opts = append(opts, perplexity.WithModel(cfg.Perplexity.Model))
		}
		client := perplexity.NewClient(cfg.Perplexity.Key, opts...)
		src.reasoner = search.NewPerplexityReasoner(client, search.PerplexityConfig{
			Model:   cfg.Perplexity.Model,
			Recency: cfg.Perplexity.RecencyFilter,
		})
	}
	if cfg.Jina.Key != "" {
		opts := []jina.Option{jina.WithRateLimit(cfg.Jina.RPS)}
		if cfg.Jina.SearchBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
		}
		client := jina.NewClient(cfg.Jina.Key, opts...)
		src.searcher = search.NewJinaSearcher(client)
	}
	return src, nil
}

// buildApp wires the services on top of already-built sources.
func buildApp(cfg *config.Config, calc *cost.Calculator, src sources) (*app, error) {
	tiers := tiersFrom(cfg.Models)
	maxEntries := cfg.Cache.MaxEntries
	disabled := !cfg.Cache.Enabled

	responses, err := orchestrator.NewResponseCache(cache.Config{
		TTL:        time.Duration(cfg.Cache.ResponseTTLSecs) * time.Second,
		MaxEntries: maxEntries,
		Disabled:   disabled,
	})
	if err != nil {
		return nil, err
	}
	classifications, err := classify.NewCache(cache.Config{
		TTL:        time.Duration(cfg.Cache.ClassificationTTLHours) * time.Hour,
		MaxEntries: maxEntries,
		Disabled:   disabled,
	})
	if err != nil {
		return nil, err
	}
	searches, err := search.NewCache(cache.Config{
		TTL:        time.Duration(cfg.Cache.SearchTTLHours) * time.Hour,
		MaxEntries: maxEntries,
		Disabled:   disabled,
	})
	if err != nil {
		return nil, err
	}
	results, err := timetravel.NewCache(cache.Config{
		TTL:        time.Duration(cfg.TimeTravel.ResultCacheTTLHours) * time.Hour,
		MaxEntries: maxEntries,
		Disabled:   disabled,
	})
	if err != nil {
		return nil, err
	}

	timelines, err := timetravel.LoadTimelines(cfg.TimeTravel.TimelinesFile)
	if err != nil {
		return nil, err
	}

	collector := monitoring.NewCollector(monitoring.DefaultWindow)
	timeout := time.Duration(cfg.Resilience.RequestTimeoutSecs) * time.Second

	orch := orchestrator.New(src.registry, responses, calc, orchestrator.Config{
		MaxConcurrent:  int64(cfg.Resilience.MaxConcurrent),
		RequestTimeout: timeout,
		MaxRetries:     cfg.Resilience.MaxRetries,
		Breaker: resilience.FromCircuitConfig(
			cfg.Resilience.FailureThreshold,
			cfg.Resilience.RecoverySecs,
			cfg.Resilience.HalfOpenMaxCalls,
		),
	}, orchestrator.WithRecorder(collector))

	classifier := classify.New(src.registry, calc, classifications, classify.Config{
		Model:         cfg.Models.Classifier,
		Tiers:         tiers,
		CutoffDisplay: cfg.Routing.KnowledgeCutoffDisplay,
	})
	policy := routing.New(calc, routing.Config{
		Tiers:             tiers,
		TemporalMinModels: cfg.Routing.TemporalMinModels,
	})
	augmenter := search.New(src.reasoner, src.searcher, calc, searches, search.Config{
		CutoffDisplay: cfg.Routing.KnowledgeCutoffDisplay,
	})
	synth := synthesis.New(orch, tiers.Synthesis, timeout)

	r := router.New(router.Deps{
		Detector:     temporal.NewDetector(temporal.WithCutoffYear(cfg.Routing.KnowledgeCutoffYear)),
		Classifier:   classifier,
		Policy:       policy,
		Orchestrator: orch,
		Synthesis:    synth,
		Search:       augmenter,
	}, router.Config{EnsembleModels: cfg.Models.Ensemble})

	tt := timetravel.New(orch, timelines, results, timetravel.Config{
		Enabled:             cfg.TimeTravel.Enabled,
		MaxSnapshots:        cfg.TimeTravel.MaxSnapshots,
		Concurrency:         int64(cfg.TimeTravel.Concurrency),
		SnapshotTimeout:     time.Duration(cfg.TimeTravel.SnapshotTimeoutSecs) * time.Second,
		SimilarityThreshold: cfg.TimeTravel.SimilarityThreshold,
		ShallowAnswerChars:  cfg.TimeTravel.ShallowAnswerChars,
		StreamBuffer:        cfg.Server.StreamBuffer,
		HeartbeatInterval:   time.Duration(cfg.Server.HeartbeatSecs) * time.Second,
		Tiers:               tiers,
	})

	monCfg := cfg.Monitoring
	checker := monitoring.NewChecker(collector, monitoring.NewAlerter(monCfg), orch, monCfg)
	checker.AddSweepers(responses, classifications, searches, results)

	limiter := ratelimit.New(cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSecs)*time.Second)

	zap.L().Info("app: services ready",
		zap.Strings("models", src.registry.IDs()),
		zap.Strings("configured", src.registry.Configured()),
		zap.Strings("search_providers", augmenter.Providers()),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.Bool("time_travel_enabled", cfg.TimeTravel.Enabled),
	)

	return &app{
		cfg:        cfg,
		calc:       calc,
		registry:   src.registry,
		orch:       orch,
		classifier: classifier,
		search:     augmenter,
		router:     r,
		timeTravel: tt,
		collector:  collector,
		checker:    checker,
		limiter:    limiter,
		providerKeys: map[string]bool{
			"anthropic":  cfg.Anthropic.Key != "",
			"gemini":     cfg.Gemini.Key != "",
			"perplexity": cfg.Perplexity.Key != "",
			"jina":       cfg.Jina.Key != "",
		},
	}, nil
}
