// Package autodev provides a client for the auto.dev vehicle listings API,
// used for VIN record lookups and comparable-listing searches.
package autodev

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/askcarbuddy/advisor-cli/internal/resilience"
)

// Client defines the auto.dev operations used by the pipeline.
type Client interface {
	// ListingByVIN returns the richest available record for a specific VIN,
	// or nil when the VIN is not listed anywhere.
	ListingByVIN(ctx context.Context, vin string) (*ListingRecord, error)
	// SearchListings returns comparable listings for a search.
	SearchListings(ctx context.Context, q SearchQuery) (*SearchResult, error)
}

// ListingRecord is one vehicle listing record from auto.dev. Price and
// Mileage come back as loosely-typed JSON (number or formatted string), so
// they are kept raw here and normalized by the caller's value parsers.
type ListingRecord struct {
	VIN          string   `json:"vin"`
	Year         int      `json:"year"`
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Trim         string   `json:"trim"`
	Price        any      `json:"price"`
	Mileage      any      `json:"mileage"`
	DealerName   string   `json:"dealerName"`
	DealerPhone  string   `json:"dealerPhone"`
	DisplayColor string   `json:"displayColor"`
	PhotoURLs    []string `json:"photoUrls"`
	BodyType     string   `json:"bodyType"`
	Engine       string   `json:"engine"`
	Transmission string   `json:"transmission"`
	Drivetrain   string   `json:"drivetrain"`
	FuelType     string   `json:"fuelType"`
	MPGCity      int      `json:"mpgCity"`
	MPGHighway   int      `json:"mpgHighway"`
}

// SearchQuery specifies a comparable-listing search.
type SearchQuery struct {
	Make        string
	Model       string
	YearMin     int
	YearMax     int
	ZipCode     string
	RadiusMiles int
	PageSize    int
}

// SearchResult holds the returned records plus the provider's total count
// of matching listings (the market depth beyond the returned page).
type SearchResult struct {
	Records    []ListingRecord `json:"records"`
	TotalCount int             `json:"totalCount"`
}

// Option configures the auto.dev client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithRetry overrides the default backoff policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	http    *http.Client
}

// NewClient creates a new auto.dev client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://auto.dev/api",
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		retry:   resilience.DefaultRetryConfig(),
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("autodev", path)

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "autodev: rate limit wait")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "autodev: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "autodev: request failed")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "autodev: read response body")
		}
		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("autodev: unexpected status %d: %s", resp.StatusCode, string(body))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}
		return body, nil
	})
}

func (c *httpClient) ListingByVIN(ctx context.Context, vin string) (*ListingRecord, error) {
	params := url.Values{}
	params.Set("vin", vin)

	body, err := c.get(ctx, "/listings", params)
	if err != nil {
		return nil, err
	}

	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "autodev: unmarshal vin lookup")
	}
	if len(result.Records) == 0 {
		return nil, nil
	}
	return &result.Records[0], nil
}

func (c *httpClient) SearchListings(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	if q.Make == "" || q.Model == "" {
		return nil, eris.New("autodev: make and model are required")
	}

	params := url.Values{}
	params.Set("make", q.Make)
	params.Set("model", q.Model)
	if q.YearMin > 0 {
		params.Set("year_min", strconv.Itoa(q.YearMin))
	}
	if q.YearMax > 0 {
		params.Set("year_max", strconv.Itoa(q.YearMax))
	}
	if q.ZipCode != "" {
		params.Set("zip", q.ZipCode)
		if q.RadiusMiles > 0 {
			params.Set("radius", strconv.Itoa(q.RadiusMiles))
		}
	}
	if q.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(q.PageSize))
	}

	body, err := c.get(ctx, "/listings", params)
	if err != nil {
		return nil, err
	}

	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("autodev: unmarshal search for %s %s", q.Make, q.Model))
	}
	if result.TotalCount == 0 {
		result.TotalCount = len(result.Records)
	}
	return &result, nil
}
