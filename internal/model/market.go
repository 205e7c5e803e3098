package model

// PriceBucket is one histogram bucket over the comp price range.
type PriceBucket struct {
	Min   int `json:"min"`
	Max   int `json:"max"`
	Count int `json:"count"`
}

// MarketSnapshot captures the distributional position of a listing price
// against comparable vehicles. Built once per run from a single provider
// query and immutable afterward. Percentile, DealScore and Savings are
// meaningful only when HasListingPrice is true.
type MarketSnapshot struct {
	CompCount   int `json:"comp_count"`
	TotalMarket int `json:"total_market"`

	MinPrice    int `json:"min_price"`
	AvgPrice    int `json:"avg_price"`
	MedianPrice int `json:"median_price"`
	MaxPrice    int `json:"max_price"`

	HasListingPrice bool `json:"has_listing_price"`
	Percentile      int  `json:"percentile,omitempty"` // 0-100, share of comps priced at or below the listing
	DealScore       int  `json:"deal_score,omitempty"` // 1-10, inverse of percentile: cheap listing → high score
	Savings         int  `json:"savings,omitempty"`    // median − listing price; negative when above median

	PriceSpreadPct int `json:"price_spread_pct"` // (max−min)/avg as a percent
	DemandScore    int `json:"demand_score"`     // 1-10 from total market depth

	Histogram []PriceBucket `json:"histogram,omitempty"`

	// MileageAdjustedAvg averages comps within a fixed mileage window of the
	// listing, giving a mileage-normalized reference point.
	MileageAdjustedAvg   int `json:"mileage_adjusted_avg,omitempty"`
	MileageAdjustedCount int `json:"mileage_adjusted_count,omitempty"`
}

// CompListing is one comparable vehicle returned by the market provider.
type CompListing struct {
	Price      int    `json:"price"`
	Mileage    int    `json:"mileage,omitempty"`
	Year       int    `json:"year,omitempty"`
	Trim       string `json:"trim,omitempty"`
	DealerName string `json:"dealer_name,omitempty"`
}
