package model

import (
	"encoding/json"
	"time"
)

// Sensitivity is how strongly a question's answer depends on "now".
type Sensitivity string

// Sensitivity levels.
const (
	SensitivityHigh   Sensitivity = "high"
	SensitivityMedium Sensitivity = "medium"
	SensitivityLow    Sensitivity = "low"
	SensitivityNone   Sensitivity = "none"
)

// Eligible reports whether the level warrants a time-travel run.
func (s Sensitivity) Eligible() bool {
	return s == SensitivityHigh || s == SensitivityMedium
}

// Velocity is the pace of change across a timeline.
type Velocity string

// Velocity values.
const (
	VelocityFast     Velocity = "fast"
	VelocityModerate Velocity = "moderate"
	VelocitySlow     Velocity = "slow"
	VelocityMinimal  Velocity = "minimal"
)

// ParseVelocity maps free text onto a Velocity, defaulting to moderate.
func ParseVelocity(s string) Velocity {
	switch Velocity(s) {
	case VelocityFast, VelocityModerate, VelocitySlow, VelocityMinimal:
		return Velocity(s)
	}
	return VelocityModerate
}

// TimeSnapshot is one answer generated as of a pinned date.
type TimeSnapshot struct {
	At             time.Time `json:"date"`
	Label          string    `json:"label"`
	Answer         string    `json:"answer"`
	KeyChanges     []string  `json:"key_changes"`
	DataPoints     []string  `json:"data_points"`
	Model          string    `json:"model_used"`
	Tokens         int       `json:"tokens_used"`
	Cost           float64   `json:"cost"`
	LatencySeconds float64   `json:"response_time_seconds"`
	Failed         bool      `json:"failed,omitempty"`
}

// TimeTravelTiming breaks down where a time-travel run spent its time.
type TimeTravelTiming struct {
	TotalMs              int64    `json:"total_ms"`
	SnapshotsParallelMs  int64    `json:"snapshots_parallel_ms"`
	DeltasMs             int64    `json:"deltas_ms"`
	NarrativeMs          int64    `json:"narrative_ms"`
	SequentialEstimateMs int64    `json:"sequential_estimate_ms"`
	SavingsMs            int64    `json:"parallelization_savings_ms"`
	Bottleneck           string   `json:"bottleneck"`
	RoutingWarnings      []string `json:"routing_warnings,omitempty"`
}

// TimeTravelResult is the full multi-epoch answer for one question.
type TimeTravelResult struct {
	Question          string           `json:"question"`
	Sensitivity       Sensitivity      `json:"temporal_sensitivity"`
	Reasoning         string           `json:"reasoning"`
	BaseComplexity    Complexity       `json:"base_complexity"`
	Model             string           `json:"model_used,omitempty"`
	Snapshots         []TimeSnapshot   `json:"snapshots"`
	Narrative         string           `json:"evolution_narrative"`
	Insights          []string         `json:"insights"`
	Velocity          Velocity         `json:"change_velocity"`
	Outlook           string           `json:"future_outlook,omitempty"`
	IsEligible        bool             `json:"is_eligible"`
	SkipReason        string           `json:"skip_reason,omitempty"`
	NarrativeFallback bool             `json:"narrative_fallback"`
	TotalCost         float64          `json:"total_cost"`
	TotalTimeSeconds  float64          `json:"total_time_seconds"`
	Timing            TimeTravelTiming `json:"timing"`
	Cached            bool             `json:"cached"`
}

// EventType tags a streaming time-travel event.
type EventType string

// Streaming event types.
const (
	EventStart          EventType = "start"
	EventClassification EventType = "classification"
	EventSnapshot       EventType = "snapshot"
	EventHeartbeat      EventType = "heartbeat"
	EventNarrative      EventType = "narrative"
	EventInsight        EventType = "insight"
	EventTiming         EventType = "timing"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
)

// Terminal reports whether no event may follow t.
func (t EventType) Terminal() bool {
	return t == EventComplete || t == EventError
}

// Event is one item of a time-travel stream.
type Event struct {
	Type        EventType      `json:"type"`
	TimestampMs int64          `json:"timestamp_ms"`
	Data        map[string]any `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{Type: t, TimestampMs: time.Now().UnixMilli(), Data: data}
}

// SSE renders the event as a server-sent-events frame.
func (e Event) SSE() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+8)
	out = append(out, "data: "...)
	out = append(out, body...)
	out = append(out, "\n\n"...)
	return out, nil
}
