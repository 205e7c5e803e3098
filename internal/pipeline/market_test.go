package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/askcarbuddy/advisor-cli/internal/model"
	"github.com/askcarbuddy/advisor-cli/pkg/autodev"
)

func fixtureComps() []model.CompListing {
	return []model.CompListing{
		{Price: 9295}, {Price: 10500}, {Price: 11200}, {Price: 12100},
		{Price: 12400}, {Price: 13000}, {Price: 14995},
	}
}

func TestBuildSnapshot_Fixture(t *testing.T) {
	snap := buildSnapshot(fixtureComps(), 13435, 0, 42, testConfig().Market)

	assert.Equal(t, 7, snap.CompCount)
	assert.Equal(t, 42, snap.TotalMarket)
	assert.Equal(t, 9295, snap.MinPrice)
	assert.Equal(t, 12100, snap.MedianPrice)
	assert.Equal(t, 14995, snap.MaxPrice)

	require.True(t, snap.HasListingPrice)
	// Six of seven comps priced at or below 13435.
	assert.Equal(t, 86, snap.Percentile)
	assert.Equal(t, 1, snap.DealScore)
	assert.Equal(t, -1335, snap.Savings)
}

func TestBuildSnapshot_NoListingPrice(t *testing.T) {
	snap := buildSnapshot(fixtureComps(), 0, 0, 7, testConfig().Market)

	assert.False(t, snap.HasListingPrice)
	assert.Zero(t, snap.Percentile)
	assert.Zero(t, snap.DealScore)
	assert.Zero(t, snap.Savings)
	// Distribution stats are still present.
	assert.Equal(t, 12100, snap.MedianPrice)
}

func TestBuildSnapshot_CheapListingScoresHigh(t *testing.T) {
	snap := buildSnapshot(fixtureComps(), 9000, 0, 7, testConfig().Market)

	assert.Equal(t, 0, snap.Percentile)
	assert.Equal(t, 10, snap.DealScore)
	assert.Positive(t, snap.Savings)
}

func TestBuildSnapshot_DemandScoreBounds(t *testing.T) {
	cfg := testConfig().Market

	low := buildSnapshot(fixtureComps(), 0, 0, 3, cfg)
	assert.Equal(t, 1, low.DemandScore)

	high := buildSnapshot(fixtureComps(), 0, 0, 500, cfg)
	assert.Equal(t, 10, high.DemandScore)
}

func TestBuildSnapshot_MileageAdjusted(t *testing.T) {
	comps := []model.CompListing{
		{Price: 10000, Mileage: 50000},
		{Price: 12000, Mileage: 55000},
		{Price: 20000, Mileage: 5000}, // outside the window, excluded
	}
	snap := buildSnapshot(comps, 11000, 52000, 3, testConfig().Market)

	assert.Equal(t, 2, snap.MileageAdjustedCount)
	assert.Equal(t, 11000, snap.MileageAdjustedAvg)
}

func TestBuildSnapshot_Histogram(t *testing.T) {
	snap := buildSnapshot(fixtureComps(), 0, 0, 7, testConfig().Market)

	require.NotEmpty(t, snap.Histogram)
	total := 0
	for _, b := range snap.Histogram {
		total += b.Count
		assert.LessOrEqual(t, b.Min, b.Max)
	}
	assert.Equal(t, 7, total)
	assert.Equal(t, 9295, snap.Histogram[0].Min)
	assert.Equal(t, 14995, snap.Histogram[len(snap.Histogram)-1].Max)
}

func TestBuildSnapshot_SingleComp(t *testing.T) {
	snap := buildSnapshot([]model.CompListing{{Price: 15000}}, 0, 0, 1, testConfig().Market)

	assert.Equal(t, 15000, snap.MedianPrice)
	require.Len(t, snap.Histogram, 1)
	assert.Equal(t, 1, snap.Histogram[0].Count)
}

func TestMarketPosition_NoComps(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.autodev.On("SearchListings", mock.Anything, mock.Anything).Return(&autodev.SearchResult{}, nil)

	snap, err := p.MarketPosition(context.Background(), &model.VehicleIdentity{
		Make: "Honda", Model: "Accord", Year: 2019,
	})
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestMarketPosition_ExcludesSubjectVIN(t *testing.T) {
	p, deps := newTestPipeline(t)

	deps.autodev.On("SearchListings", mock.Anything, mock.MatchedBy(func(q autodev.SearchQuery) bool {
		return q.Make == "Honda" && q.YearMin == 2018 && q.YearMax == 2020 && q.ZipCode == "48309"
	})).Return(&autodev.SearchResult{
		Records: []autodev.ListingRecord{
			{VIN: "1HGCV1F54KA123456", Price: 13435},
			{VIN: "1HGCV1F54KA999999", Price: 12000},
		},
	}, nil)

	snap, err := p.MarketPosition(context.Background(), &model.VehicleIdentity{
		Make: "Honda", Model: "Accord", Year: 2019, VIN: "1HGCV1F54KA123456",
	})
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.CompCount)
}

func TestParseComps_SkipsUnparseablePrices(t *testing.T) {
	comps := parseComps([]autodev.ListingRecord{
		{Price: "12,500"},
		{Price: "Call for price"},
		{Price: nil},
		{Price: float64(9800), Mileage: "45k"},
	}, "")

	require.Len(t, comps, 2)
	assert.Equal(t, 12500, comps[0].Price)
	assert.Equal(t, 9800, comps[1].Price)
	assert.Equal(t, 45000, comps[1].Mileage)
}
