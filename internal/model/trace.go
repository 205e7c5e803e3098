package model

import "time"

// StageLatency records how long one pipeline stage took.
type StageLatency struct {
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
}

// TokenUsage aggregates generation-service token consumption for a run.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates another usage into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Trace is the durable record of one pipeline execution, written exactly
// once before any response is returned and never updated afterward. Reward
// signals and engagement events attach to it by id.
type Trace struct {
	ID       string `json:"id"`
	InputRef string `json:"input_ref"` // listing URL or "manual"

	VehicleLabel string `json:"vehicle_label,omitempty"`
	VIN          string `json:"vin,omitempty"`

	Stages       []StageLatency `json:"stages,omitempty"`
	OverallScore float64        `json:"overall_score,omitempty"`
	SectionsOK   int            `json:"sections_ok"`
	SectionsFail int            `json:"sections_fail"`

	Usage        TokenUsage `json:"usage"`
	EstimatedUSD float64    `json:"estimated_usd,omitempty"`

	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RewardSignalKind is the categorical feedback value.
type RewardSignalKind string

const (
	RewardHelpful    RewardSignalKind = "helpful"
	RewardNotHelpful RewardSignalKind = "not_helpful"
)

// RewardSignal is user feedback attached to a trace after report delivery.
// Many signals may reference one trace.
type RewardSignal struct {
	ID        string           `json:"id"`
	TraceID   string           `json:"trace_id"`
	Signal    RewardSignalKind `json:"signal"`
	CreatedAt time.Time        `json:"created_at"`
}

// EngagementEvent records how long a reader dwelled on one report section.
type EngagementEvent struct {
	ID        string      `json:"id"`
	TraceID   string      `json:"trace_id"`
	Section   SectionName `json:"section"`
	DwellMS   int64       `json:"dwell_ms"`
	CreatedAt time.Time   `json:"created_at"`
}
