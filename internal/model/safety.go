package model

// RiskLabel is the ordered categorical band for a safety risk score.
type RiskLabel string

const (
	RiskLow      RiskLabel = "Low"
	RiskModerate RiskLabel = "Moderate"
	RiskElevated RiskLabel = "Elevated"
	RiskHigh     RiskLabel = "High"
)

// Recall is one retained recall record for the vehicle.
type Recall struct {
	Component   string `json:"component"`
	Summary     string `json:"summary"`
	Consequence string `json:"consequence"`
	Remedy      string `json:"remedy"`
}

// ComplaintArea is a complaint component with its occurrence count.
type ComplaintArea struct {
	Component string `json:"component"`
	Count     int    `json:"count"`
}

// SafetyProfile summarizes recall and complaint history for one
// year/make/model, with a calibrated composite risk score in [0,10].
type SafetyProfile struct {
	RecallCount          int             `json:"recall_count"`
	ComplaintCount       int             `json:"complaint_count"`
	SevereComplaintCount int             `json:"severe_complaint_count"`
	RiskScore            float64         `json:"risk_score"`
	RiskLabel            RiskLabel       `json:"risk_label"`
	Recalls              []Recall        `json:"recalls,omitempty"`
	TopComplaints        []ComplaintArea `json:"top_complaint_areas,omitempty"` // ranked descending by count
}
