// Package search augments time-sensitive questions with current web
// information. A combined search-and-reasoning provider is tried first and a
// plain result search second. Failure of both is never fatal.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/answer-router/internal/cache"
	"github.com/sells-group/answer-router/internal/cost"
)

// DefaultMaxResults is how many plain search hits feed the context block.
const DefaultMaxResults = 5

// Hit is one web search result or citation.
type Hit struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet"`
	Source    string `json:"source"`
	Published string `json:"publish_date,omitempty"`
}

// Reasoning is the answer of a combined search-and-reasoning call.
type Reasoning struct {
	Answer           string
	Model            string
	Citations        []Hit
	PromptTokens     int
	CompletionTokens int
	RetrievedAt      time.Time
}

// Reasoner searches the web and answers in one call.
type Reasoner interface {
	Reason(ctx context.Context, query string) (*Reasoning, error)
}

// Searcher returns plain web search results.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Hit, error)
}

// Result describes what augmentation produced for one question.
type Result struct {
	Context  string        `json:"-"`
	Used     bool          `json:"was_search_used"`
	Provider string        `json:"search_provider,omitempty"`
	Cost     float64       `json:"search_cost"`
	Results  []Hit         `json:"results,omitempty"`
	Warning  string        `json:"ui_warning_message,omitempty"`
	Cached   bool          `json:"cached"`
	Elapsed  time.Duration `json:"-"`
}

// Augmented returns question with the search context appended, or question
// unchanged when search was not used.
func (r Result) Augmented(question string) string {
	if !r.Used || r.Context == "" {
		return question
	}
	return question + "\n\n" + r.Context
}

// Config controls augmentation.
type Config struct {
	MaxResults    int
	CutoffDisplay string
}

// Augmenter runs the two-stage search.
type Augmenter struct {
	reasoner Reasoner
	searcher Searcher
	calc     *cost.Calculator
	cache    *cache.TTL[Result]
	cfg      Config

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCache creates the search result cache.
func NewCache(cfg cache.Config) (*cache.TTL[Result], error) {
	return cache.New[Result]("search", cfg)
}

// New creates an Augmenter. A nil reasoner or searcher skips that stage.
// results may be nil to disable caching.
func New(reasoner Reasoner, searcher Searcher, calc *cost.Calculator, results *cache.TTL[Result], cfg Config) *Augmenter {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.CutoffDisplay == "" {
		cfg.CutoffDisplay = "October 2023"
	}
	if calc == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}
	return &Augmenter{
		reasoner: reasoner,
		searcher: searcher,
		calc:     calc,
		cache:    results,
		cfg:      cfg,
		nowFunc:  time.Now,
	}
}

// Configured reports whether any search stage is available.
func (a *Augmenter) Configured() bool {
	return a.reasoner != nil || a.searcher != nil
}

// Providers names the configured stages in the order they are tried.
func (a *Augmenter) Providers() []string {
	var out []string
	if a.reasoner != nil {
		out = append(out, "perplexity")
	}
	if a.searcher != nil {
		out = append(out, "jina")
	}
	return out
}

// ClearCache drops every cached search result.
func (a *Augmenter) ClearCache() {
	if a.cache != nil {
		a.cache.Clear()
	}
}

// Augment fetches current information for question. It never fails:
// when both stages are unavailable the result has Used=false and a warning.
// A cached result costs nothing.
func (a *Augmenter) Augment(ctx context.Context, question string) Result {
	start := time.Now()
	key := cache.QuestionKey(question)
	if a.cache != nil {
		if hit, ok := a.cache.Get(key); ok {
			zap.L().Debug("search: cache hit")
			hit.Cached = true
			hit.Cost = 0
			hit.Elapsed = time.Since(start)
			return hit
		}
	}

	res, ok := a.tryReasoner(ctx, question)
	if !ok {
		res, ok = a.trySearcher(ctx, question)
	}
	if !ok {
		res = Result{
			Warning: fmt.Sprintf("This query asks about information that may be more recent than the AI models' knowledge cutoff (%s). Consider verifying with current sources.", a.cfg.CutoffDisplay),
		}
	}
	res.Elapsed = time.Since(start)

	if ok && a.cache != nil {
		a.cache.Set(key, res)
	}
	return res
}

func (a *Augmenter) tryReasoner(ctx context.Context, question string) (Result, bool) {
	if a.reasoner == nil {
		return Result{}, false
	}
	r, err := a.reasoner.Reason(ctx, question)
	if err != nil {
		zap.L().Warn("search: reasoning search failed", zap.Error(err))
		return Result{}, false
	}
	if r == nil || r.Answer == "" {
		zap.L().Warn("search: reasoning search returned no answer")
		return Result{}, false
	}
	if r.RetrievedAt.IsZero() {
		r.RetrievedAt = a.nowFunc()
	}

	usd := cost.Round6(a.calc.Perplexity(r.PromptTokens, r.CompletionTokens))
	zap.L().Info("search: reasoning search complete",
		zap.String("model", r.Model),
		zap.Int("citations", len(r.Citations)),
		zap.Float64("cost_usd", usd),
	)
	return Result{
		Context:  FormatReasoning(r),
		Used:     true,
		Provider: fmt.Sprintf("perplexity (%s)", r.Model),
		Cost:     usd,
		Results:  r.Citations,
		Warning:  fmt.Sprintf("Real-time web search used (Perplexity %s). %d sources cited.", r.Model, len(r.Citations)),
	}, true
}

func (a *Augmenter) trySearcher(ctx context.Context, question string) (Result, bool) {
	if a.searcher == nil {
		return Result{}, false
	}
	hits, err := a.searcher.Search(ctx, question, a.cfg.MaxResults)
	if err != nil {
		zap.L().Warn("search: web search failed", zap.Error(err))
		return Result{}, false
	}
	if len(hits) == 0 {
		zap.L().Warn("search: web search returned no results")
		return Result{}, false
	}
	if len(hits) > a.cfg.MaxResults {
		hits = hits[:a.cfg.MaxResults]
	}

	zap.L().Info("search: web search complete", zap.Int("results", len(hits)))
	return Result{
		Context:  FormatHits(hits, a.nowFunc(), a.cfg.CutoffDisplay),
		Used:     true,
		Provider: "jina",
		Cost:     a.calc.SearchQuery(),
		Results:  hits,
		Warning:  "This query asks about recent information. Web search was used to augment the response.",
	}, true
}
