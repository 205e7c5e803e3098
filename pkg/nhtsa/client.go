// Package nhtsa provides a client for the NHTSA recall/complaint database
// and the vPIC VIN decoder.
package nhtsa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/askcarbuddy/advisor-cli/internal/resilience"
)

// Client defines the NHTSA operations used by the pipeline. Recalls and
// Complaints are independent; either may fail without affecting the other.
type Client interface {
	DecodeVIN(ctx context.Context, vin string) (*VINDecode, error)
	Recalls(ctx context.Context, year int, make, model string) ([]Recall, error)
	Complaints(ctx context.Context, year int, make, model string) ([]Complaint, error)
}

// VINDecode holds the authoritative vehicle attributes decoded from a VIN.
type VINDecode struct {
	Year         int    `json:"year"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	Trim         string `json:"trim"`
	BodyType     string `json:"body_type"`
	Engine       string `json:"engine"`
	Transmission string `json:"transmission"`
	Drivetrain   string `json:"drivetrain"`
	FuelType     string `json:"fuel_type"`
}

// Recall is one recall campaign record.
type Recall struct {
	Component   string `json:"Component"`
	Summary     string `json:"Summary"`
	Consequence string `json:"Consequence"`
	Remedy      string `json:"Remedy"`
}

// Complaint is one consumer complaint record.
type Complaint struct {
	ODINumber  int    `json:"odiNumber"`
	Components string `json:"components"`
	Summary    string `json:"summary"`
	Crash      bool   `json:"crash"`
	Fire       bool   `json:"fire"`
}

// Option configures the NHTSA client.
type Option func(*httpClient)

// WithBaseURL sets a custom recalls/complaints base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithVPICBaseURL sets a custom vPIC base URL (for testing).
func WithVPICBaseURL(url string) Option {
	return func(c *httpClient) {
		c.vpicBaseURL = url
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
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 2)
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
	baseURL     string
	vpicBaseURL string
	limiter     *rate.Limiter
	retry       resilience.RetryConfig
	http        *http.Client
}

// NewClient creates a new NHTSA client. The public APIs need no key.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:     "https://api.nhtsa.gov",
		vpicBaseURL: "https://vpic.nhtsa.dot.gov/api",
		limiter:     rate.NewLimiter(rate.Limit(5), 2),
		retry:       resilience.DefaultRetryConfig(),
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

func (c *httpClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("nhtsa", "get")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "nhtsa: rate limit wait")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "nhtsa: create request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "nhtsa: request failed")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "nhtsa: read response body")
		}
		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("nhtsa: unexpected status %d: %s", resp.StatusCode, string(body))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}
		return body, nil
	})
}

// vpicDecodeResponse wraps the flat key/value decode result. vPIC returns
// every attribute as a string, empty when unknown.
type vpicDecodeResponse struct {
	Results []map[string]string `json:"Results"`
}

func (c *httpClient) DecodeVIN(ctx context.Context, vin string) (*VINDecode, error) {
	reqURL := fmt.Sprintf("%s/vehicles/DecodeVinValues/%s?format=json", c.vpicBaseURL, url.PathEscape(vin))

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var result vpicDecodeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "nhtsa: unmarshal vin decode")
	}
	if len(result.Results) == 0 {
		return nil, eris.Errorf("nhtsa: empty decode result for %s", vin)
	}

	r := result.Results[0]
	year, _ := strconv.Atoi(r["ModelYear"])

	engine := r["DisplacementL"]
	if engine != "" {
		engine += "L"
	}
	if r["EngineCylinders"] != "" {
		if engine != "" {
			engine += " "
		}
		engine += r["EngineCylinders"] + "-cyl"
	}

	return &VINDecode{
		Year:         year,
		Make:         titleCase(r["Make"]),
		Model:        r["Model"],
		Trim:         r["Trim"],
		BodyType:     r["BodyClass"],
		Engine:       engine,
		Transmission: r["TransmissionStyle"],
		Drivetrain:   r["DriveType"],
		FuelType:     r["FuelTypePrimary"],
	}, nil
}

type recallsResponse struct {
	Count   int      `json:"Count"`
	Results []Recall `json:"results"`
}

func (c *httpClient) Recalls(ctx context.Context, year int, mk, model string) ([]Recall, error) {
	params := url.Values{}
	params.Set("make", mk)
	params.Set("model", model)
	params.Set("modelYear", strconv.Itoa(year))

	body, err := c.get(ctx, c.baseURL+"/recalls/recallsByVehicle?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var result recallsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "nhtsa: unmarshal recalls")
	}
	return result.Results, nil
}

type complaintsResponse struct {
	Count   int         `json:"count"`
	Results []Complaint `json:"results"`
}

func (c *httpClient) Complaints(ctx context.Context, year int, mk, model string) ([]Complaint, error) {
	params := url.Values{}
	params.Set("make", mk)
	params.Set("model", model)
	params.Set("modelYear", strconv.Itoa(year))

	body, err := c.get(ctx, c.baseURL+"/complaints/complaintsByVehicle?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var result complaintsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "nhtsa: unmarshal complaints")
	}
	return result.Results, nil
}

// titleCase converts vPIC's all-caps make names ("HONDA") to display form.
// A cases.Caser is stateful and not safe for concurrent use, so each call
// gets its own.
func titleCase(s string) string {
	return cases.Title(language.English).String(strings.ToLower(s))
}
