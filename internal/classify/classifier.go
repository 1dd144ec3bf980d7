// Package classify labels questions with a complexity tier, intent and
// domain using one cheap model call, with a cached result per question.
package classify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/answer-router/internal/cache"
	"github.com/sells-group/answer-router/internal/cost"
	"github.com/sells-group/answer-router/internal/model"
	"github.com/sells-group/answer-router/internal/provider"
)

const (
	// DefaultTimeout bounds the classifier call.
	DefaultTimeout = 10 * time.Second

	maxTokens   = 300
	temperature = 0.1

	defaultReasoning = "Default classification due to classifier failure"
)

// Config controls the classifier.
type Config struct {
	// Model is the provider used for classification. Default: the cheap tier.
	Model         string
	Tiers         model.Tiers
	Timeout       time.Duration
	CutoffDisplay string
}

// Result is a classification and what it cost to obtain.
type Result struct {
	Classification model.QueryClassification
	Cost           float64
	Tokens         model.TokenUsage
	Cached         bool
}

// Classifier is the LLM-backed query classifier.
type Classifier struct {
	registry *provider.Registry
	calc     *cost.Calculator
	cache    *cache.TTL[model.QueryClassification]
	cfg      Config
}

// NewCache creates the classification cache.
func NewCache(cfg cache.Config) (*cache.TTL[model.QueryClassification], error) {
	return cache.New[model.QueryClassification]("classification", cfg)
}

// New creates a Classifier. classifications may be nil to disable caching.
func New(registry *provider.Registry, calc *cost.Calculator, classifications *cache.TTL[model.QueryClassification], cfg Config) *Classifier {
	if cfg.Tiers == (model.Tiers{}) {
		cfg.Tiers = model.DefaultTiers()
	}
	if cfg.Model == "" {
		cfg.Model = cfg.Tiers.Cheap
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CutoffDisplay == "" {
		cfg.CutoffDisplay = "October 2023"
	}
	if calc == nil {
		calc = cost.NewCalculator(cost.Rates{})
	}
	return &Classifier{registry: registry, calc: calc, cache: classifications, cfg: cfg}
}

// Classify labels question. It never fails: on any error the default
// classification is returned with Fallback set. hint, when not nil, applies
// the temporal override.
func (c *Classifier) Classify(ctx context.Context, question string, hint *model.TemporalDetection) Result {
	key := cache.QuestionKey(question)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			zap.L().Debug("classify: cache hit")
			return Result{Classification: cached, Cached: true}
		}
	}

	start := time.Now()
	cls, tokens, err := c.invoke(ctx, question)
	if err != nil {
		zap.L().Warn("classify: falling back to default classification",
			zap.String("model", c.cfg.Model),
			zap.Error(err),
		)
		def := c.Default()
		ApplyTemporalOverride(&def, hint)
		return Result{Classification: def}
	}

	ApplyTemporalOverride(&cls, hint)
	usd := cost.Round6(c.calc.Estimate(c.cfg.Model, tokens.Prompt, tokens.Completion))

	if c.cache != nil {
		c.cache.Set(key, cls)
	}

	zap.L().Info("classify: query classified",
		zap.String("complexity", string(cls.Complexity)),
		zap.String("intent", string(cls.Intent)),
		zap.String("domain", string(cls.Domain)),
		zap.Bool("requires_search", cls.RequiresSearch),
		zap.Duration("elapsed", time.Since(start)),
	)

	return Result{Classification: cls, Cost: usd, Tokens: tokens}
}

// Default is the classification used when the classifier call fails.
func (c *Classifier) Default() model.QueryClassification {
	return model.QueryClassification{
		Complexity:        model.ComplexityModerate,
		Intent:            model.IntentFactual,
		Domain:            model.DomainGeneral,
		RequiresSearch:    false,
		RecommendedModels: []string{c.cfg.Tiers.Cheap, c.cfg.Tiers.Mid},
		Confidence:        0.5,
		Reasoning:         defaultReasoning,
		TemporalScope:     model.ScopeEvergreen,
		Fallback:          true,
	}
}

// ClearCache drops every cached classification.
func (c *Classifier) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// CacheStats reports classification cache usage.
func (c *Classifier) CacheStats() cache.Stats {
	if c.cache == nil {
		return cache.Stats{Name: "classification"}
	}
	return c.cache.Stats()
}

func (c *Classifier) invoke(ctx context.Context, question string) (model.QueryClassification, model.TokenUsage, error) {
	p, ok := c.registry.Get(c.cfg.Model)
	if !ok {
		return model.QueryClassification{}, model.TokenUsage{}, provider.Unavailable(c.cfg.Model, "classifier model not registered")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	out, err := p.Invoke(ctx, provider.Request{
		System:      systemPrompt,
		Prompt:      c.buildPrompt(question),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return model.QueryClassification{}, model.TokenUsage{}, eris.Wrap(provider.Classify(c.cfg.Model, err), "classify: invoke")
	}
	tokens := model.NewTokenUsage(out.PromptTokens, out.CompletionTokens)

	cls, err := Parse(out.Text, c.cfg.Tiers)
	if err != nil {
		return model.QueryClassification{}, tokens, err
	}
	return cls, tokens, nil
}

type rawClassification struct {
	Complexity        *string  `json:"complexity"`
	Intent            *string  `json:"intent"`
	Domain            *string  `json:"domain"`
	RequiresSearch    bool     `json:"requires_search"`
	RecommendedModels []string `json:"recommended_models"`
	Reasoning         string   `json:"reasoning"`
	Confidence        *float64 `json:"confidence"`
}

// Parse extracts a classification from model output. Code fences and text
// around the JSON object are ignored. Missing fields take defaults. An enum
// that is present but empty or unknown is an error.
func Parse(text string, tiers model.Tiers) (model.QueryClassification, error) {
	body, err := ExtractJSON(text)
	if err != nil {
		return model.QueryClassification{}, err
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return model.QueryClassification{}, eris.Wrap(err, "classify: unmarshal classification")
	}

	cls := model.QueryClassification{
		Complexity:     model.Complexity(enumOr(raw.Complexity, string(model.ComplexityModerate))),
		Intent:         model.Intent(enumOr(raw.Intent, string(model.IntentFactual))),
		Domain:         model.Domain(enumOr(raw.Domain, string(model.DomainGeneral))),
		RequiresSearch: raw.RequiresSearch,
		Reasoning:      orDefault(raw.Reasoning, "Default classification"),
		Confidence:     0.8,
		TemporalScope:  model.ScopeEvergreen,
	}
	if !cls.Complexity.Valid() {
		return model.QueryClassification{}, eris.Errorf("classify: invalid complexity %q", cls.Complexity)
	}
	if !cls.Intent.Valid() {
		return model.QueryClassification{}, eris.Errorf("classify: invalid intent %q", cls.Intent)
	}
	if !cls.Domain.Valid() {
		return model.QueryClassification{}, eris.Errorf("classify: invalid domain %q", cls.Domain)
	}
	if raw.Confidence != nil {
		cls.Confidence = min(max(*raw.Confidence, 0), 1)
	}

	for _, m := range raw.RecommendedModels {
		if m = strings.TrimSpace(m); m != "" {
			cls.RecommendedModels = append(cls.RecommendedModels, m)
		}
	}
	if len(cls.RecommendedModels) == 0 {
		cls.RecommendedModels = tiers.For(cls.Complexity)
	}
	return cls, nil
}

// ExtractJSON returns the outermost {...} object in text, tolerating
// markdown code fences and surrounding prose.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	open := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if open < 0 || end < open {
		return "", eris.New("classify: no JSON object in response")
	}
	return s[open : end+1], nil
}

// ApplyTemporalOverride adjusts c for a temporal question: a temporal
// question is never simple, and one needing current data requires search.
func ApplyTemporalOverride(c *model.QueryClassification, hint *model.TemporalDetection) {
	if hint == nil {
		return
	}
	c.TemporalScope = hint.Scope
	if !hint.IsTemporal {
		return
	}

	if c.Complexity == model.ComplexitySimple {
		c.Complexity = model.ComplexityModerate
		zap.L().Info("classify: temporal override raised complexity to moderate")
	}
	if hint.RequiresCurrentData && !c.RequiresSearch {
		c.RequiresSearch = true
		zap.L().Info("classify: temporal override enabled search")
	}
	c.Reasoning += " [TEMPORAL OVERRIDE: " + hint.Reasoning + "]"
	c.TemporalOverride = true
}

// enumOr returns def only when the field was absent.
func enumOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
