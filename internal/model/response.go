package model

import "time"

// CacheStatus marks whether a response was served from cache.
type CacheStatus string

// Cache status values.
const (
	CacheHit  CacheStatus = "hit"
	CacheMiss CacheStatus = "miss"
)

// TokenUsage counts prompt and completion tokens for one call.
type TokenUsage struct {
	Prompt     int `json:"prompt_tokens"`
	Completion int `json:"completion_tokens"`
	Total      int `json:"total_tokens"`
}

// NewTokenUsage builds a TokenUsage with Total filled in.
func NewTokenUsage(prompt, completion int) TokenUsage {
	return TokenUsage{Prompt: prompt, Completion: completion, Total: prompt + completion}
}

// ProviderResponse is the outcome of a single provider call. A failed
// response always carries empty Text and zero Cost.
type ProviderResponse struct {
	Provider       string      `json:"model_name"`
	Text           string      `json:"response_text"`
	Tokens         TokenUsage  `json:"tokens_used"`
	Cost           float64     `json:"cost_estimate"`
	LatencySeconds float64     `json:"response_time_seconds"`
	Timestamp      time.Time   `json:"timestamp"`
	CacheStatus    CacheStatus `json:"cache_status"`
	Success        bool        `json:"success"`
	Error          string      `json:"error,omitempty"`
	// ErrorKind is the failure class, such as "timeout" or "circuit_open".
	ErrorKind      string      `json:"error_kind,omitempty"`
}

// FailedResponse builds the failure slot for provider with the given message.
func FailedResponse(provider, msg string, latency time.Duration) ProviderResponse {
	return ProviderResponse{
		Provider:       provider,
		LatencySeconds: latency.Seconds(),
		Timestamp:      time.Now().UTC(),
		CacheStatus:    CacheMiss,
		Success:        false,
		Error:          msg,
	}
}

// Successful filters responses down to the successful ones.
func Successful(responses []ProviderResponse) []ProviderResponse {
	out := make([]ProviderResponse, 0, len(responses))
	for _, r := range responses {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

// SynthesisResult is the merged answer built from several provider responses.
// Failed is set when the synthesis call errored and Answer holds the failure message.
type SynthesisResult struct {
	Answer         string            `json:"synthesized_answer"`
	Model          string            `json:"synthesis_model"`
	Tokens         TokenUsage        `json:"tokens_used"`
	Cost           float64           `json:"cost_estimate"`
	LatencySeconds float64           `json:"response_time_seconds"`
	Timestamp      time.Time         `json:"timestamp"`
	Contributions  map[string]string `json:"model_contributions,omitempty"`
	SoleText       string            `json:"-"`
	Failed         bool              `json:"failed"`
}

// CostBreakdown splits the total cost of a routed answer by stage.
type CostBreakdown struct {
	ClassificationCost float64            `json:"classification_cost"`
	SearchCost         float64            `json:"search_cost"`
	ModelCosts         map[string]float64 `json:"model_costs"`
	SynthesisCost      float64            `json:"synthesis_cost"`
	TotalCost          float64            `json:"total_cost"`
	FullEnsembleCost   float64            `json:"full_ensemble_cost"`
	Savings            float64            `json:"savings"`
	SavingsPercentage  float64            `json:"savings_percentage"`
}

// RoutingStats aggregates routing outcomes over the process lifetime.
type RoutingStats struct {
	TotalQueries             int            `json:"total_queries"`
	SimpleQueries            int            `json:"simple_queries"`
	ModerateQueries          int            `json:"moderate_queries"`
	ComplexQueries           int            `json:"complex_queries"`
	TotalCost                float64        `json:"total_cost"`
	TotalSavings             float64        `json:"total_savings"`
	AverageSavingsPercentage float64        `json:"average_savings_percentage"`
	ModelUsageDistribution   map[string]int `json:"model_usage_distribution"`
	FallbackCount            int            `json:"fallback_count"`
}
