package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askcarbuddy/advisor-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleTrace(id string) *model.Trace {
	return &model.Trace{
		ID:           id,
		InputRef:     "https://www.cars.com/vehicledetail/detail/1HGCV1F54KA123456/",
		VehicleLabel: "2019 Honda Accord EX-L",
		VIN:          "1HGCV1F54KA123456",
		Stages: []model.StageLatency{
			{Stage: "identity", DurationMS: 850},
			{Stage: "market", DurationMS: 1200},
		},
		OverallScore: 7.5,
		SectionsOK:   5,
		SectionsFail: 0,
		Usage:        model.TokenUsage{InputTokens: 4200, OutputTokens: 2100},
		EstimatedUSD: 0.0118,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestSQLite_CreateAndGetTrace(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	trace := sampleTrace("trace-1")
	require.NoError(t, st.CreateTrace(ctx, trace))

	got, err := st.GetTrace(ctx, "trace-1")
	require.NoError(t, err)
	assert.Equal(t, trace.VehicleLabel, got.VehicleLabel)
	assert.Equal(t, trace.VIN, got.VIN)
	assert.Equal(t, 5, got.SectionsOK)
	assert.InDelta(t, 7.5, got.OverallScore, 0.001)
	assert.Equal(t, int64(4200), got.Usage.InputTokens)
	require.Len(t, got.Stages, 2)
	assert.Equal(t, "identity", got.Stages[0].Stage)
}

func TestSQLite_CreateTrace_FailureRecord(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	trace := &model.Trace{
		ID:        "trace-fail",
		InputRef:  "manual",
		Error:     "could not resolve vehicle identity (tried: listing_url, page_content, vin_listing, vin_decode)",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateTrace(ctx, trace))

	got, err := st.GetTrace(ctx, "trace-fail")
	require.NoError(t, err)
	assert.Contains(t, got.Error, "could not resolve")
	assert.Empty(t, got.VehicleLabel)
	assert.Zero(t, got.OverallScore)
}

func TestSQLite_GetTrace_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetTrace(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListTraces_FilterByVIN(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := sampleTrace("trace-a")
	b := sampleTrace("trace-b")
	b.VIN = "5YJ3E1EA7KF317000"
	require.NoError(t, st.CreateTrace(ctx, a))
	require.NoError(t, st.CreateTrace(ctx, b))

	got, err := st.ListTraces(ctx, TraceFilter{VIN: "1HGCV1F54KA123456"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "trace-a", got[0].ID)
}

func TestSQLite_ListTraces_Limit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, st.CreateTrace(ctx, sampleTrace(id)))
	}

	got, err := st.ListTraces(ctx, TraceFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLite_AttachReward(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateTrace(ctx, sampleTrace("trace-r")))

	rs, err := st.AttachReward(ctx, "trace-r", model.RewardHelpful)
	require.NoError(t, err)
	assert.NotEmpty(t, rs.ID)
	assert.Equal(t, model.RewardHelpful, rs.Signal)

	// Multiple signals may attach to one trace.
	_, err = st.AttachReward(ctx, "trace-r", model.RewardNotHelpful)
	require.NoError(t, err)
}

func TestSQLite_RecordEngagement(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateTrace(ctx, sampleTrace("trace-e")))

	ev, err := st.RecordEngagement(ctx, "trace-e", model.SectionReliability, 14500)
	require.NoError(t, err)
	assert.Equal(t, model.SectionReliability, ev.Section)
	assert.Equal(t, int64(14500), ev.DwellMS)
}

func TestSQLite_ConcurrentWrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			trace := sampleTrace("")
			trace.ID = trace.VIN + "-" + time.Now().Format("150405.000000000") + string(rune('a'+n))
			errs <- st.CreateTrace(ctx, trace)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
