// Package model defines the request-scoped types shared by the routing,
// orchestration and time-travel packages.
package model

// TemporalScope describes which period a question's answer depends on.
type TemporalScope string

// Temporal scope values.
const (
	ScopeEvergreen  TemporalScope = "evergreen"
	ScopeHistorical TemporalScope = "historical"
	ScopeCurrent    TemporalScope = "current"
	ScopeFuture     TemporalScope = "future"
)

// TemporalDetection is the lexical time-sensitivity analysis of a question.
type TemporalDetection struct {
	IsTemporal          bool          `json:"is_temporal"`
	Scope               TemporalScope `json:"temporal_scope"`
	RequiresCurrentData bool          `json:"requires_current_data"`
	Keywords            []string      `json:"detected_keywords"`
	Years               []int         `json:"detected_years"`
	Confidence          float64       `json:"confidence"`
	Reasoning           string        `json:"reasoning"`
}

// Complexity is the difficulty tier assigned to a question.
type Complexity string

// Complexity tiers.
const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Valid reports whether c is a known tier.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	}
	return false
}

// Intent is the kind of answer the asker expects.
type Intent string

// Intent values.
const (
	IntentFactual     Intent = "factual"
	IntentCreative    Intent = "creative"
	IntentAnalytical  Intent = "analytical"
	IntentProcedural  Intent = "procedural"
	IntentComparative Intent = "comparative"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentFactual, IntentCreative, IntentAnalytical, IntentProcedural, IntentComparative:
		return true
	}
	return false
}

// Domain is the subject area of a question.
type Domain string

// Domain values.
const (
	DomainCoding    Domain = "coding"
	DomainTechnical Domain = "technical"
	DomainGeneral   Domain = "general"
	DomainCreative  Domain = "creative"
	DomainResearch  Domain = "research"
)

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	switch d {
	case DomainCoding, DomainTechnical, DomainGeneral, DomainCreative, DomainResearch:
		return true
	}
	return false
}

// QueryClassification is the complexity/intent/domain label for a question.
// Fallback is set when the classifier call failed and defaults were used.
type QueryClassification struct {
	Complexity        Complexity    `json:"complexity"`
	Intent            Intent        `json:"intent"`
	Domain            Domain        `json:"domain"`
	RequiresSearch    bool          `json:"requires_search"`
	RecommendedModels []string      `json:"recommended_models"`
	Confidence        float64       `json:"confidence"`
	Reasoning         string        `json:"reasoning"`
	TemporalScope     TemporalScope `json:"temporal_scope,omitempty"`
	TemporalOverride  bool          `json:"temporal_override"`
	Fallback          bool          `json:"fallback"`
}

// RoutingDecision lists the providers to call and whether to synthesize.
type RoutingDecision struct {
	Models               []string `json:"models"`
	UseSynthesis         bool     `json:"use_synthesis"`
	SynthesisModel       string   `json:"synthesis_model,omitempty"`
	EstimatedCost        float64  `json:"estimated_cost"`
	EstimatedTimeSeconds float64  `json:"estimated_time_seconds"`
	Rationale            string   `json:"rationale"`
	MinModelsForTemporal *int     `json:"min_models_for_temporal,omitempty"`
	AddWebSearch         bool     `json:"add_web_search_recommendation"`
}
