package pipeline

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/askcarbuddy/advisor-cli/internal/model"
	"github.com/askcarbuddy/advisor-cli/pkg/nhtsa"
)

const (
	maxRecallDetails   = 10
	maxComplaintAreas  = 5
	maxSeverityPenalty = 3.0
)

// severityKeywords flag complaints describing outcomes severe enough to
// weight the risk score beyond raw counts.
var severityKeywords = []string{
	"fire",
	"fatality",
	"death",
	"crash",
	"loss of steering",
	"brake failure",
	"stall",
	"airbag",
}

// SafetyProfile fetches federal recall and complaint records and computes
// the risk score. Recalls and complaints are fetched concurrently; either
// side may fail independently and the score is computed from what arrived.
// Returns (nil, nil) only when both lookups fail.
func (p *Pipeline) SafetyProfile(ctx context.Context, id *model.VehicleIdentity) (*model.SafetyProfile, error) {
	if p.nhtsa == nil || id.Year == 0 {
		return nil, nil
	}

	var (
		recalls    []nhtsa.Recall
		complaints []nhtsa.Complaint
		recallErr  error
		complErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recalls, recallErr = p.nhtsa.Recalls(gctx, id.Year, id.Make, id.Model)
		return nil
	})
	g.Go(func() error {
		complaints, complErr = p.nhtsa.Complaints(gctx, id.Year, id.Make, id.Model)
		return nil
	})
	_ = g.Wait()

	if recallErr != nil {
		zap.L().Warn("recall lookup failed", zap.String("vehicle", id.Label()), zap.Error(recallErr))
	}
	if complErr != nil {
		zap.L().Warn("complaint lookup failed", zap.String("vehicle", id.Label()), zap.Error(complErr))
	}
	if recallErr != nil && complErr != nil {
		return nil, nil
	}

	profile := buildSafetyProfile(recalls, complaints)
	zap.L().Info("safety profile computed",
		zap.String("vehicle", id.Label()),
		zap.Int("recalls", profile.RecallCount),
		zap.Int("complaints", profile.ComplaintCount),
		zap.Float64("risk_score", profile.RiskScore),
		zap.String("risk_label", string(profile.RiskLabel)))
	return profile, nil
}

func buildSafetyProfile(recalls []nhtsa.Recall, complaints []nhtsa.Complaint) *model.SafetyProfile {
	profile := &model.SafetyProfile{
		RecallCount:    len(recalls),
		ComplaintCount: len(complaints),
	}

	for i, r := range recalls {
		if i >= maxRecallDetails {
			break
		}
		profile.Recalls = append(profile.Recalls, model.Recall{
			Component:   r.Component,
			Summary:     r.Summary,
			Consequence: r.Consequence,
			Remedy:      r.Remedy,
		})
	}

	profile.TopComplaints = rankComplaintAreas(complaints)

	severe := 0
	for _, c := range complaints {
		if isSevereComplaint(c) {
			severe++
		}
	}
	profile.SevereComplaintCount = severe

	profile.RiskScore = ComputeRiskScore(len(complaints), len(recalls), severe)
	profile.RiskLabel = riskLabel(profile.RiskScore)
	return profile
}

// ComputeRiskScore maps complaint volume, recall volume, and severe-complaint
// volume onto a 0-10 risk score. Pure and monotone non-decreasing in every
// input.
func ComputeRiskScore(complaintCount, recallCount, severeCount int) float64 {
	var score float64

	switch {
	case complaintCount < 50:
	case complaintCount < 150:
		score += 1
	case complaintCount < 300:
		score += 2
	case complaintCount < 600:
		score += 3
	default:
		score += 4
	}

	switch {
	case recallCount <= 2:
	case recallCount <= 6:
		score += 1
	case recallCount <= 10:
		score += 2
	default:
		score += 3
	}

	severity := 0.5 * float64(severeCount)
	if severity > maxSeverityPenalty {
		severity = maxSeverityPenalty
	}
	score += severity

	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score
}

func riskLabel(score float64) model.RiskLabel {
	switch {
	case score < 2:
		return model.RiskLow
	case score < 4:
		return model.RiskModerate
	case score < 7:
		return model.RiskElevated
	default:
		return model.RiskHigh
	}
}

func isSevereComplaint(c nhtsa.Complaint) bool {
	if c.Crash || c.Fire {
		return true
	}
	text := strings.ToLower(c.Summary)
	for _, kw := range severityKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// rankComplaintAreas groups complaints by component and returns the most
// complained-about areas, largest first.
func rankComplaintAreas(complaints []nhtsa.Complaint) []model.ComplaintArea {
	counts := make(map[string]int)
	for _, c := range complaints {
		for _, comp := range strings.Split(c.Components, ",") {
			comp = strings.TrimSpace(comp)
			if comp != "" {
				counts[comp]++
			}
		}
	}
	if len(counts) == 0 {
		return nil
	}

	areas := make([]model.ComplaintArea, 0, len(counts))
	for comp, n := range counts {
		areas = append(areas, model.ComplaintArea{Component: comp, Count: n})
	}
	sort.Slice(areas, func(i, j int) bool {
		if areas[i].Count != areas[j].Count {
			return areas[i].Count > areas[j].Count
		}
		return areas[i].Component < areas[j].Component
	})
	if len(areas) > maxComplaintAreas {
		areas = areas[:maxComplaintAreas]
	}
	return areas
}
