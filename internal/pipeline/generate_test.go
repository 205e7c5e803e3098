package pipeline

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/askcarbuddy/advisor-cli/internal/model"
	"github.com/askcarbuddy/advisor-cli/pkg/anthropic"
)

func sampleRunData() *runData {
	research := model.ResearchBundle{
		model.TopicGenerationFacts: "The 1.5T had oil dilution issues.\n[source: https://a.example.com]",
		model.TopicOwnerFeedback:   "Owners praise the ride.\n[source: https://b.example.com]",
		model.TopicBuyingTips:      model.NoEvidenceMarker,
	}
	return &runData{
		Identity: &model.VehicleIdentity{
			Year: 2019, Make: "Honda", Model: "Accord", Trim: "EX-L",
			Price: 13435, Mileage: 52000, VIN: "1HGCV1F54KA123456",
			Engine: "1.5L 4-cyl", MPGCity: 30, MPGHighway: 38,
			DealerName: "Lakeside Honda",
		},
		Market: &model.MarketSnapshot{
			CompCount: 7, MedianPrice: 12100, HasListingPrice: true,
			Percentile: 86, DealScore: 1, Savings: -1335,
		},
		Safety: &model.SafetyProfile{
			RecallCount: 1, ComplaintCount: 40, RiskScore: 0, RiskLabel: model.RiskLow,
		},
		Research: research,
	}
}

func TestBuildSectionContexts_DataIsolation(t *testing.T) {
	contexts := buildSectionContexts(sampleRunData())
	require.Len(t, contexts, 5)

	byName := make(map[model.SectionName]sectionContext)
	for _, sc := range contexts {
		byName[sc.Name] = sc
	}

	// Market numbers appear only in the market section.
	assert.Contains(t, byName[model.SectionMarketPosition].Context, "12100")
	assert.NotContains(t, byName[model.SectionReliability].Context, "12100")
	assert.NotContains(t, byName[model.SectionOwnerExperience].Context, "12100")

	// Safety record reaches only the reliability section.
	assert.Contains(t, byName[model.SectionReliability].Context, "recall_count")
	assert.NotContains(t, byName[model.SectionBuyingPlaybook].Context, "recall_count")

	// Owner feedback evidence stays out of reliability.
	assert.Contains(t, byName[model.SectionOwnerExperience].Context, "b.example.com")
	assert.NotContains(t, byName[model.SectionReliability].Context, "b.example.com")

	// Dealer fields only in the playbook; powertrain only in costs.
	assert.Contains(t, byName[model.SectionBuyingPlaybook].Context, "Lakeside Honda")
	assert.Contains(t, byName[model.SectionOwnershipCosts].Context, "1.5L 4-cyl")

	// Every section sees the identity core.
	for name, sc := range byName {
		assert.Contains(t, sc.Context, "2019 Honda Accord EX-L", "section %s", name)
	}
}

func TestBuildSectionContexts_NoEvidenceFlags(t *testing.T) {
	contexts := buildSectionContexts(sampleRunData())

	for _, sc := range contexts {
		switch sc.Name {
		case model.SectionBuyingPlaybook:
			assert.True(t, sc.NoEvidence, "buying_tips came back empty")
		case model.SectionMarketPosition, model.SectionReliability, model.SectionOwnerExperience:
			assert.False(t, sc.NoEvidence)
		}
	}
}

func TestGenerateSection_Success(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.anthropic.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.MaxTokens == 1024 && len(req.System) == 1
	})).Return(textResponse("```json\n{\"summary\": \"priced above median\", \"price_position\": \"above_market\"}\n```"), nil)

	sc := marketPositionContext(sampleRunData())
	payload, usage, err := p.generateSection(context.Background(), sc)
	require.NoError(t, err)

	var parsed model.MarketPositionPayload
	require.NoError(t, json.Unmarshal(payload, &parsed))
	assert.Equal(t, "above_market", parsed.PricePosition)
	assert.Equal(t, int64(100), usage.InputTokens)
}

func TestGenerateSection_RetriesOnTruncation(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.anthropic.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.MaxTokens == 1024
	})).Return(truncatedResponse(`{"summary": "cut off mid`), nil).Once()
	deps.anthropic.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.MaxTokens == 2048
	})).Return(textResponse(`{"summary": "complete", "price_position": "competitive"}`), nil).Once()

	sc := marketPositionContext(sampleRunData())
	payload, usage, err := p.generateSection(context.Background(), sc)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "complete")
	// Both attempts count toward usage.
	assert.Equal(t, int64(200), usage.InputTokens)
	deps.anthropic.AssertExpectations(t)
}

func TestGenerateSection_RetriesOnUnparseableOutput(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("I cannot produce JSON for this."), nil).Once()
	deps.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"summary": "second try works"}`), nil).Once()

	sc := marketPositionContext(sampleRunData())
	payload, _, err := p.generateSection(context.Background(), sc)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "second try")
}

func TestGenerateSection_ExhaustsBudgetSchedule(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Return(truncatedResponse("{..."), nil).Twice()

	sc := marketPositionContext(sampleRunData())
	_, _, err := p.generateSection(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")
	deps.anthropic.AssertExpectations(t)
}

func TestGenerateSection_NoEvidencePromptAsksForFallback(t *testing.T) {
	p, deps := newTestPipeline(t)

	var captured anthropic.MessageRequest
	deps.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(anthropic.MessageRequest)
		}).
		Return(textResponse(`{"before_you_visit": [], "questions_to_ask": [], "test_drive": []}`), nil)

	sc := buyingPlaybookContext(sampleRunData())
	require.True(t, sc.NoEvidence)

	_, _, err := p.generateSection(context.Background(), sc)
	require.NoError(t, err)
	require.Len(t, captured.Messages, 1)
	assert.Contains(t, captured.Messages[0].Content, "honest fallback")
	assert.Contains(t, captured.Messages[0].Content, model.NoEvidenceMarker)
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced no language", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around object", `Here you go: {"a": 1} hope that helps`, `{"a": 1}`},
		{"nested braces", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}

func TestGenerateSections_PartialFailure(t *testing.T) {
	// Serialize the section calls so the mock's ordered expectations map
	// deterministically onto one section's two attempts.
	cfg := testConfig()
	cfg.Sections.MaxConcurrent = 1
	deps := &testDeps{anthropic: &mockAnthropicClient{}}
	p := New(cfg, nil, nil, nil, deps.anthropic, nil)

	deps.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("no json here at all"), nil).Twice() // one section, both attempts
	deps.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"ok": true}`), nil)

	var usage model.TokenUsage
	results := p.GenerateSections(context.Background(), sampleRunData(), &usage)
	require.Len(t, results, 5)

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		} else {
			assert.NotNil(t, r.Payload)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Positive(t, usage.InputTokens)
}

func TestGenerateSections_AppliesPhaseDeadline(t *testing.T) {
	cfg := testConfig()
	cfg.Sections.TimeoutSecs = 30
	deps := &testDeps{anthropic: &mockAnthropicClient{}}
	p := New(cfg, nil, nil, nil, deps.anthropic, nil)

	var deadlineSet atomic.Bool
	deps.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			if _, ok := args.Get(0).(context.Context).Deadline(); ok {
				deadlineSet.Store(true)
			}
		}).
		Return(textResponse(`{"ok": true}`), nil)

	results := p.GenerateSections(context.Background(), sampleRunData(), nil)
	require.Len(t, results, 5)
	assert.True(t, deadlineSet.Load(), "generation calls must carry the phase deadline")
}
