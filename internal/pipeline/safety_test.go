package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/askcarbuddy/advisor-cli/internal/model"
	"github.com/askcarbuddy/advisor-cli/pkg/nhtsa"
)

func TestComputeRiskScore_Bands(t *testing.T) {
	tests := []struct {
		name       string
		complaints int
		recalls    int
		severe     int
		want       float64
	}{
		{"zero data floor", 0, 0, 0, 0},
		{"few complaints few recalls", 49, 2, 0, 0},
		{"complaint band boundaries", 50, 0, 0, 1},
		{"mid complaints", 150, 0, 0, 2},
		{"high complaints", 300, 0, 0, 3},
		{"very high complaints", 600, 0, 0, 4},
		{"recall band boundaries", 0, 3, 0, 1},
		{"mid recalls", 0, 7, 0, 2},
		{"many recalls", 0, 11, 0, 3},
		{"severity adds half point each", 0, 0, 2, 1},
		{"severity capped at three", 0, 0, 50, 3},
		{"worst case clamps inside ten", 10000, 100, 100, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeRiskScore(tt.complaints, tt.recalls, tt.severe)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestComputeRiskScore_Monotone(t *testing.T) {
	counts := []int{0, 10, 60, 200, 400, 800}

	for _, recalls := range []int{0, 3, 8, 15} {
		prev := -1.0
		for _, complaints := range counts {
			got := ComputeRiskScore(complaints, recalls, 0)
			assert.GreaterOrEqual(t, got, prev,
				"score must not decrease as complaints grow (recalls=%d complaints=%d)", recalls, complaints)
			prev = got
		}
	}

	for _, complaints := range counts {
		prev := -1.0
		for _, recalls := range []int{0, 1, 3, 7, 11, 20} {
			got := ComputeRiskScore(complaints, recalls, 0)
			assert.GreaterOrEqual(t, got, prev,
				"score must not decrease as recalls grow (complaints=%d recalls=%d)", complaints, recalls)
			prev = got
		}
	}
}

func TestRiskLabel_Bands(t *testing.T) {
	assert.Equal(t, model.RiskLow, riskLabel(0))
	assert.Equal(t, model.RiskLow, riskLabel(1.9))
	assert.Equal(t, model.RiskModerate, riskLabel(2))
	assert.Equal(t, model.RiskElevated, riskLabel(4))
	assert.Equal(t, model.RiskHigh, riskLabel(7))
	assert.Equal(t, model.RiskHigh, riskLabel(10))
}

func TestIsSevereComplaint(t *testing.T) {
	assert.True(t, isSevereComplaint(nhtsa.Complaint{Summary: "Engine stall on the highway"}))
	assert.True(t, isSevereComplaint(nhtsa.Complaint{Summary: "Complete brake failure approaching a light"}))
	assert.True(t, isSevereComplaint(nhtsa.Complaint{Summary: "minor rattle", Crash: true}))
	assert.True(t, isSevereComplaint(nhtsa.Complaint{Summary: "smoke", Fire: true}))
	assert.False(t, isSevereComplaint(nhtsa.Complaint{Summary: "Infotainment screen flickers"}))
}

func TestRankComplaintAreas(t *testing.T) {
	complaints := []nhtsa.Complaint{
		{Components: "ELECTRICAL SYSTEM"},
		{Components: "ELECTRICAL SYSTEM"},
		{Components: "SERVICE BRAKES"},
		{Components: "ELECTRICAL SYSTEM,AIR BAGS"},
		{Components: "POWER TRAIN"},
		{Components: "SUSPENSION"},
		{Components: "STEERING"},
		{Components: "FUEL SYSTEM"},
	}

	areas := rankComplaintAreas(complaints)
	require.Len(t, areas, 5)
	assert.Equal(t, "ELECTRICAL SYSTEM", areas[0].Component)
	assert.Equal(t, 3, areas[0].Count)
}

func TestSafetyProfile_OneSideMayFail(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.nhtsa.On("Recalls", mock.Anything, 2019, "Honda", "Accord").
		Return(nil, errors.New("recall api down"))
	deps.nhtsa.On("Complaints", mock.Anything, 2019, "Honda", "Accord").
		Return([]nhtsa.Complaint{{Components: "ELECTRICAL SYSTEM", Summary: "screen blank"}}, nil)

	profile, err := p.SafetyProfile(context.Background(), &model.VehicleIdentity{
		Year: 2019, Make: "Honda", Model: "Accord",
	})
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 1, profile.ComplaintCount)
	assert.Zero(t, profile.RecallCount)
}

func TestSafetyProfile_BothSidesFail(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.nhtsa.On("Recalls", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("down"))
	deps.nhtsa.On("Complaints", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("down"))

	profile, err := p.SafetyProfile(context.Background(), &model.VehicleIdentity{
		Year: 2019, Make: "Honda", Model: "Accord",
	})
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestSafetyProfile_SkippedWithoutYear(t *testing.T) {
	p, deps := newTestPipeline(t)

	profile, err := p.SafetyProfile(context.Background(), &model.VehicleIdentity{
		Make: "Honda", Model: "Accord",
	})
	require.NoError(t, err)
	assert.Nil(t, profile)
	deps.nhtsa.AssertNotCalled(t, "Recalls")
}

func TestBuildSafetyProfile_RecallCapAndZeroFloor(t *testing.T) {
	recalls := make([]nhtsa.Recall, 14)
	profile := buildSafetyProfile(recalls, nil)

	assert.Equal(t, 14, profile.RecallCount)
	assert.Len(t, profile.Recalls, 10)

	empty := buildSafetyProfile(nil, nil)
	assert.Zero(t, empty.RiskScore)
	assert.Equal(t, model.RiskLow, empty.RiskLabel)
}
