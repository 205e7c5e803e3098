package model

import (
	"encoding/json"
	"time"
)

// SectionName identifies one of the fixed report sections.
type SectionName string

const (
	SectionMarketPosition  SectionName = "market_position"
	SectionReliability     SectionName = "reliability"
	SectionOwnerExperience SectionName = "owner_experience"
	SectionBuyingPlaybook  SectionName = "buying_playbook"
	SectionOwnershipCosts  SectionName = "ownership_costs"
)

// AllSections is the fixed set of report sections, in presentation order.
var AllSections = []SectionName{
	SectionMarketPosition,
	SectionReliability,
	SectionOwnerExperience,
	SectionBuyingPlaybook,
	SectionOwnershipCosts,
}

// SectionResult is the outcome of one section generation call: either a
// populated payload or an explicit failure, never both.
type SectionResult struct {
	Name    SectionName     `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Failed reports whether the section ended in a failure marker.
func (s SectionResult) Failed() bool {
	return s.Error != ""
}

// ScoreLabel is the ordered verdict band for the overall score.
type ScoreLabel string

const (
	LabelGreatFind  ScoreLabel = "Great Find"
	LabelSolidPick  ScoreLabel = "Solid Pick"
	LabelWorthALook ScoreLabel = "Worth a Look"
	LabelCaution    ScoreLabel = "Proceed with Caution"
	LabelThinkTwice ScoreLabel = "Think Twice"
)

// OverallScore is the synthesized verdict across all sections.
type OverallScore struct {
	Score    float64    `json:"score"` // 0.0-10.0, one decimal
	Label    ScoreLabel `json:"label"`
	OneLiner string     `json:"one_liner"`
}

// Report is the assembled advisory report for one listing.
type Report struct {
	TraceID     string    `json:"trace_id"`
	GeneratedAt time.Time `json:"generated_at"`

	Vehicle VehicleIdentity `json:"vehicle"`
	Market  *MarketSnapshot `json:"market,omitempty"`
	Safety  *SafetyProfile  `json:"safety,omitempty"`

	Overall  OverallScore    `json:"overall"`
	Sections []SectionResult `json:"sections"`
}

// MarketPositionPayload is the structured output of the market_position section.
type MarketPositionPayload struct {
	Summary       string   `json:"summary"`
	PricePosition string   `json:"price_position"` // below_market|competitive|market_price|above_market
	ValueFactors  []string `json:"value_factors,omitempty"`
	Negotiation   string   `json:"negotiation,omitempty"`
}

// KnownIssue is one documented issue for a generation/engine/transmission.
type KnownIssue struct {
	Item     string `json:"item"`
	Severity string `json:"severity"` // minor_quirk|worth_checking|important|serious
	Context  string `json:"context"`
	WhatToDo string `json:"what_to_do"`
}

// ReliabilityPayload is the structured output of the reliability section.
type ReliabilityPayload struct {
	GenerationOverview string       `json:"generation_overview"`
	KnownIssues        []KnownIssue `json:"known_issues,omitempty"`
	RecallTakeaway     string       `json:"recall_takeaway,omitempty"`
}

// OwnerExperiencePayload is the structured output of the owner_experience section.
type OwnerExperiencePayload struct {
	Sentiment    string   `json:"sentiment"`
	Praises      []string `json:"praises,omitempty"`
	Complaints   []string `json:"complaints,omitempty"`
	EvidenceNote string   `json:"evidence_note,omitempty"`
}

// DealerQuestion is one prepared question for the dealer visit.
type DealerQuestion struct {
	Ask      string `json:"ask"`
	Why      string `json:"why"`
	GoodSign string `json:"good_sign,omitempty"`
	HeadsUp  string `json:"heads_up,omitempty"`
}

// BuyingPlaybookPayload is the structured output of the buying_playbook section.
type BuyingPlaybookPayload struct {
	BeforeYouVisit []string         `json:"before_you_visit,omitempty"`
	QuestionsToAsk []DealerQuestion `json:"questions_to_ask,omitempty"`
	TestDrive      []string         `json:"test_drive,omitempty"`
}

// OwnershipCostsPayload is the structured output of the ownership_costs section.
type OwnershipCostsPayload struct {
	MonthlyFuel          string `json:"monthly_fuel,omitempty"`
	AnnualInsuranceRange string `json:"annual_insurance_range,omitempty"`
	AnnualMaintenance    string `json:"annual_maintenance,omitempty"`
	TotalAnnualEstimate  string `json:"total_annual_estimate,omitempty"`
	OwnershipVerdict     string `json:"ownership_verdict"`
}
