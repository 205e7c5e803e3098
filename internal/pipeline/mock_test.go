package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/askcarbuddy/advisor-cli/internal/model"
	"github.com/askcarbuddy/advisor-cli/internal/store"
	"github.com/askcarbuddy/advisor-cli/pkg/anthropic"
	"github.com/askcarbuddy/advisor-cli/pkg/autodev"
	"github.com/askcarbuddy/advisor-cli/pkg/exa"
	"github.com/askcarbuddy/advisor-cli/pkg/nhtsa"
)

// --- Exa Mock ---

type mockExaClient struct {
	mock.Mock
}

func (m *mockExaClient) Contents(ctx context.Context, targetURL string) (*exa.ContentsResult, error) {
	args := m.Called(ctx, targetURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exa.ContentsResult), args.Error(1)
}

func (m *mockExaClient) Search(ctx context.Context, query string, numResults int) ([]exa.SearchResult, error) {
	args := m.Called(ctx, query, numResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]exa.SearchResult), args.Error(1)
}

// --- AutoDev Mock ---

type mockAutoDevClient struct {
	mock.Mock
}

func (m *mockAutoDevClient) ListingByVIN(ctx context.Context, vin string) (*autodev.ListingRecord, error) {
	args := m.Called(ctx, vin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*autodev.ListingRecord), args.Error(1)
}

func (m *mockAutoDevClient) SearchListings(ctx context.Context, q autodev.SearchQuery) (*autodev.SearchResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*autodev.SearchResult), args.Error(1)
}

// --- NHTSA Mock ---

type mockNHTSAClient struct {
	mock.Mock
}

func (m *mockNHTSAClient) DecodeVIN(ctx context.Context, vin string) (*nhtsa.VINDecode, error) {
	args := m.Called(ctx, vin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*nhtsa.VINDecode), args.Error(1)
}

func (m *mockNHTSAClient) Recalls(ctx context.Context, year int, mk, mdl string) ([]nhtsa.Recall, error) {
	args := m.Called(ctx, year, mk, mdl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]nhtsa.Recall), args.Error(1)
}

func (m *mockNHTSAClient) Complaints(ctx context.Context, year int, mk, mdl string) ([]nhtsa.Complaint, error) {
	args := m.Called(ctx, year, mk, mdl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]nhtsa.Complaint), args.Error(1)
}

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateTrace(ctx context.Context, trace *model.Trace) error {
	args := m.Called(ctx, trace)
	return args.Error(0)
}

func (m *mockStore) GetTrace(ctx context.Context, traceID string) (*model.Trace, error) {
	args := m.Called(ctx, traceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Trace), args.Error(1)
}

func (m *mockStore) ListTraces(ctx context.Context, filter store.TraceFilter) ([]model.Trace, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Trace), args.Error(1)
}

func (m *mockStore) AttachReward(ctx context.Context, traceID string, signal model.RewardSignalKind) (*model.RewardSignal, error) {
	args := m.Called(ctx, traceID, signal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RewardSignal), args.Error(1)
}

func (m *mockStore) RecordEngagement(ctx context.Context, traceID string, section model.SectionName, dwellMS int64) (*model.EngagementEvent, error) {
	args := m.Called(ctx, traceID, section, dwellMS)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EngagementEvent), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// textResponse builds a successful end_turn message response with the text.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg_test",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

// truncatedResponse builds a max_tokens-stopped response.
func truncatedResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg_trunc",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "max_tokens",
		Usage:      anthropic.TokenUsage{InputTokens: 100, OutputTokens: 1024},
	}
}
