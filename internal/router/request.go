package router

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/answer-router/internal/model"
	"github.com/sells-group/answer-router/internal/search"
)

// Request bounds and defaults.
const (
	MaxQuestionChars   = 5000
	MinMaxTokens       = 100
	MaxMaxTokens       = 4000
	DefaultMaxTokens   = 2000
	DefaultTemperature = 0.7
	MaxTemperature     = 2.0
)

// NoAnswer is the final answer when no provider produced text.
const NoAnswer = "Unable to generate a response. Please try again."

var (
	// ErrInvalidRequest marks a request that failed validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrAllProvidersFailed is returned when every provider call of a
	// fan-out failed, including the fallback route.
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// AnswerRequest is the input of the primary routed path.
type AnswerRequest struct {
	Question    string   `json:"question"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	// OverrideModels replaces tier selection. Models is accepted as an alias.
	OverrideModels []string `json:"override_models,omitempty"`
	Models         []string `json:"models,omitempty"`
	ForceSynthesis *bool    `json:"force_synthesis,omitempty"`
	EnableSearch   *bool    `json:"enable_search,omitempty"`
}

// Validate checks bounds and fills defaults in place.
func (r *AnswerRequest) Validate() error {
	q, err := validQuestion(r.Question)
	if err != nil {
		return err
	}
	r.Question = q

	if r.MaxTokens, err = validMaxTokens(r.MaxTokens, MaxMaxTokens); err != nil {
		return err
	}
	if err := validTemperature(r.Temperature); err != nil {
		return err
	}
	if len(r.OverrideModels) == 0 && len(r.Models) > 0 {
		r.OverrideModels = r.Models
	}
	r.OverrideModels = cleanModels(r.OverrideModels)
	r.Models = nil
	return nil
}

// SearchEnabled reports whether search augmentation may run. Default true.
func (r *AnswerRequest) SearchEnabled() bool {
	return r.EnableSearch == nil || *r.EnableSearch
}

func (r *AnswerRequest) temperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

// ExecutionMetrics records how long each stage of a routed answer took.
type ExecutionMetrics struct {
	TemporalDetectionMs float64            `json:"temporal_detection_time_ms"`
	ClassificationMs    float64            `json:"classification_time_ms"`
	SearchMs            float64            `json:"search_time_ms"`
	ModelExecutionMs    map[string]float64 `json:"model_execution_time_ms"`
	ModelStageMs        float64            `json:"model_stage_time_ms"`
	SynthesisMs         float64            `json:"synthesis_time_ms"`
	TotalMs             float64            `json:"total_time_ms"`
}

// AnswerResponse is the full outcome of RouteAndAnswer.
type AnswerResponse struct {
	RequestID              string                    `json:"request_id"`
	Question               string                    `json:"question"`
	Classification         model.QueryClassification `json:"classification"`
	Routing                model.RoutingDecision     `json:"routing_decision"`
	ModelsUsed             []string                  `json:"models_used"`
	Responses              []model.ProviderResponse  `json:"individual_responses"`
	FinalAnswer            string                    `json:"final_answer"`
	Synthesis              *model.SynthesisResult    `json:"synthesis,omitempty"`
	Cost                   model.CostBreakdown       `json:"cost_breakdown"`
	Execution              ExecutionMetrics          `json:"execution_metrics"`
	Temporal               model.TemporalDetection   `json:"temporal_detection"`
	SearchUsed             bool                      `json:"was_search_used"`
	Search                 *search.Result            `json:"search_results,omitempty"`
	RoutingOverrideApplied bool                      `json:"routing_override_applied"`
	RoutingOverrideReason  string                    `json:"routing_override_reason,omitempty"`
	UIWarning              string                    `json:"ui_warning_message,omitempty"`
	FallbackUsed           bool                      `json:"fallback_used"`
	FallbackReason         string                    `json:"fallback_reason,omitempty"`
	Timestamp              time.Time                 `json:"timestamp"`
}

// EnsembleRequest asks a fixed set of models and always synthesizes.
type EnsembleRequest struct {
	Question    string   `json:"question"`
	Models      []string `json:"models,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Validate checks bounds and fills defaults in place.
func (r *EnsembleRequest) Validate() error {
	q, err := validQuestion(r.Question)
	if err != nil {
		return err
	}
	r.Question = q
	if r.MaxTokens, err = validMaxTokens(r.MaxTokens, MaxMaxTokens); err != nil {
		return err
	}
	if err := validTemperature(r.Temperature); err != nil {
		return err
	}
	r.Models = cleanModels(r.Models)
	return nil
}

// EnsembleResponse is the outcome of Ensemble.
type EnsembleResponse struct {
	RequestID        string                   `json:"request_id"`
	Question         string                   `json:"question"`
	Responses        []model.ProviderResponse `json:"model_responses"`
	Synthesis        model.SynthesisResult    `json:"synthesis"`
	TotalCost        float64                  `json:"total_cost"`
	TotalTimeSeconds float64                  `json:"total_time_seconds"`
	Timestamp        time.Time                `json:"timestamp"`
	Cached           bool                     `json:"cached"`
}

// SynthesisRequest merges caller-supplied responses.
type SynthesisRequest struct {
	Question       string                   `json:"question"`
	Responses      []model.ProviderResponse `json:"model_responses"`
	SynthesisModel string                   `json:"synthesis_model,omitempty"`
}

// Validate checks the question and that there is something to merge.
func (r *SynthesisRequest) Validate() error {
	q, err := validQuestion(r.Question)
	if err != nil {
		return err
	}
	r.Question = q
	if len(r.Responses) == 0 {
		return eris.Wrap(ErrInvalidRequest, "router: model_responses must not be empty")
	}
	return nil
}

// ModelInfo describes one registered model.
type ModelInfo struct {
	ID             string  `json:"id"`
	Tier           string  `json:"tier,omitempty"`
	Configured     bool    `json:"configured"`
	CostPer1KIn    float64 `json:"cost_per_1k_input"`
	CostPer1KOut   float64 `json:"cost_per_1k_output"`
	TypicalLatency float64 `json:"typical_latency_seconds"`
}

// ModelsResponse lists the registry and the default ensemble.
type ModelsResponse struct {
	Models        []ModelInfo `json:"models"`
	DefaultModels []string    `json:"default_models"`
	Tiers         model.Tiers `json:"tiers"`
}

func validQuestion(q string) (string, error) {
	q = strings.TrimSpace(q)
	if n := utf8.RuneCountInString(q); n == 0 || n > MaxQuestionChars {
		return "", eris.Wrapf(ErrInvalidRequest, "router: question must be 1 to %d characters", MaxQuestionChars)
	}
	return q, nil
}

func validMaxTokens(n, limit int) (int, error) {
	if n == 0 {
		return DefaultMaxTokens, nil
	}
	if n < MinMaxTokens || n > limit {
		return 0, eris.Wrapf(ErrInvalidRequest, "router: max_tokens must be between %d and %d", MinMaxTokens, limit)
	}
	return n, nil
}

func validTemperature(t *float64) error {
	if t != nil && (*t < 0 || *t > MaxTemperature) {
		return eris.Wrapf(ErrInvalidRequest, "router: temperature must be between 0 and %.1f", MaxTemperature)
	}
	return nil
}

func cleanModels(in []string) []string {
	var out []string
	for _, m := range in {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
