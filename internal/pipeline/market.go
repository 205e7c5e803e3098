package pipeline

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/askcarbuddy/advisor-cli/internal/config"
	"github.com/askcarbuddy/advisor-cli/internal/model"
	"github.com/askcarbuddy/advisor-cli/pkg/autodev"
)

// MarketPosition queries comparable listings and computes the listing's
// distributional position. Returns (nil, nil) when the provider finds no
// usable comps; the report simply omits market context in that case.
func (p *Pipeline) MarketPosition(ctx context.Context, id *model.VehicleIdentity) (*model.MarketSnapshot, error) {
	if p.autodev == nil {
		return nil, nil
	}

	q := autodev.SearchQuery{
		Make:        id.Make,
		Model:       id.Model,
		ZipCode:     id.ZipCode,
		RadiusMiles: p.cfg.Market.RadiusMiles,
		PageSize:    p.cfg.Market.PageSize,
	}
	if id.Year > 0 {
		q.YearMin = max(id.Year-1, 1990)
		q.YearMax = id.Year + 1
	}
	if q.ZipCode == "" {
		q.ZipCode = p.cfg.DefaultZip
	}

	result, err := p.autodev.SearchListings(ctx, q)
	if err != nil {
		return nil, err
	}

	comps := parseComps(result.Records, id.VIN)
	if len(comps) == 0 {
		zap.L().Warn("no usable comps for market position",
			zap.String("vehicle", id.Label()),
			zap.Int("raw_records", len(result.Records)))
		return nil, nil
	}

	snap := buildSnapshot(comps, id.Price, id.Mileage, result.TotalCount, p.cfg.Market)
	zap.L().Info("market position computed",
		zap.Int("comps", snap.CompCount),
		zap.Int("total_market", snap.TotalMarket),
		zap.Int("median", snap.MedianPrice),
		zap.Int("deal_score", snap.DealScore))
	return snap, nil
}

// parseComps normalizes provider records into comps with a parsed positive
// price, excluding the subject listing itself by VIN.
func parseComps(records []autodev.ListingRecord, subjectVIN string) []model.CompListing {
	comps := make([]model.CompListing, 0, len(records))
	for _, rec := range records {
		if subjectVIN != "" && rec.VIN == subjectVIN {
			continue
		}
		price, ok := model.ParsePrice(rec.Price)
		if !ok {
			continue
		}
		comp := model.CompListing{
			Price:      price,
			Year:       rec.Year,
			Trim:       rec.Trim,
			DealerName: rec.DealerName,
		}
		if miles, ok := model.ParseMileage(rec.Mileage); ok {
			comp.Mileage = miles
		}
		comps = append(comps, comp)
	}
	return comps
}

func buildSnapshot(comps []model.CompListing, listingPrice, listingMileage, totalMarket int, cfg config.MarketConfig) *model.MarketSnapshot {
	prices := make([]int, len(comps))
	for i, c := range comps {
		prices[i] = c.Price
	}
	sort.Ints(prices)

	n := len(prices)
	sum := 0
	for _, p := range prices {
		sum += p
	}

	snap := &model.MarketSnapshot{
		CompCount:   n,
		TotalMarket: max(totalMarket, n),
		MinPrice:    prices[0],
		AvgPrice:    sum / n,
		MedianPrice: prices[n/2],
		MaxPrice:    prices[n-1],
	}

	if snap.AvgPrice > 0 {
		snap.PriceSpreadPct = int(math.Round(float64(snap.MaxPrice-snap.MinPrice) / float64(snap.AvgPrice) * 100))
	}
	snap.DemandScore = min(10, max(1, snap.TotalMarket/10))
	snap.Histogram = buildHistogram(prices, cfg.MaxBuckets, cfg.MinBucketWidth)

	if listingPrice > 0 {
		snap.HasListingPrice = true
		atOrBelow := 0
		for _, p := range prices {
			if p <= listingPrice {
				atOrBelow++
			}
		}
		snap.Percentile = int(math.Round(float64(atOrBelow) / float64(n) * 100))
		snap.DealScore = min(10, max(1, int(math.Round(10-float64(snap.Percentile)/10))))
		snap.Savings = snap.MedianPrice - listingPrice
	}

	if listingMileage > 0 && cfg.MileageWindow > 0 {
		mSum, mCount := 0, 0
		for _, c := range comps {
			if c.Mileage > 0 && abs(c.Mileage-listingMileage) <= cfg.MileageWindow {
				mSum += c.Price
				mCount++
			}
		}
		if mCount > 0 {
			snap.MileageAdjustedAvg = mSum / mCount
			snap.MileageAdjustedCount = mCount
		}
	}

	return snap
}

// buildHistogram splits the comp price range into equal-width buckets. The
// width never drops below minWidth so tight ranges produce fewer, coarser
// buckets instead of many empty ones.
func buildHistogram(sortedPrices []int, maxBuckets, minWidth int) []model.PriceBucket {
	if len(sortedPrices) == 0 || maxBuckets <= 0 {
		return nil
	}
	lo, hi := sortedPrices[0], sortedPrices[len(sortedPrices)-1]
	if lo == hi {
		return []model.PriceBucket{{Min: lo, Max: hi, Count: len(sortedPrices)}}
	}

	width := max((hi-lo)/maxBuckets, max(minWidth, 1))
	count := (hi - lo + width - 1) / width
	if count > maxBuckets {
		count = maxBuckets
		width = (hi - lo + count - 1) / count
	}

	buckets := make([]model.PriceBucket, count)
	for i := range buckets {
		buckets[i].Min = lo + i*width
		buckets[i].Max = buckets[i].Min + width - 1
	}
	buckets[count-1].Max = hi

	for _, p := range sortedPrices {
		idx := (p - lo) / width
		if idx >= count {
			idx = count - 1
		}
		buckets[idx].Count++
	}
	return buckets
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
