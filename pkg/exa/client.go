// Package exa provides a client for the Exa AI contents and search API.
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Exa operations used by the pipeline: page-content
// retrieval for listing URLs and topical web search for research evidence.
type Client interface {
	// Contents fetches the cleaned page text and image links for a URL.
	Contents(ctx context.Context, targetURL string) (*ContentsResult, error)
	// Search performs a web search and returns ranked results with text.
	Search(ctx context.Context, query string, numResults int) ([]SearchResult, error)
}

// ContentsResult holds the retrieved page content for one URL.
type ContentsResult struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	ImageLinks []string `json:"image_links,omitempty"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Option configures the Exa client.
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

// WithMaxImageLinks bounds how many image links Contents requests per page.
func WithMaxImageLinks(n int) Option {
	return func(c *httpClient) {
		c.maxImageLinks = n
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
	apiKey        string
	baseURL       string
	maxImageLinks int
	http          *http.Client
}

// NewClient creates a new Exa client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       "https://api.exa.ai",
		maxImageLinks: 5,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// postJSON executes a JSON POST with exponential backoff retries on
// transient failures (429, 500, 502, 503). Returns the response body and
// status code on success, or the last error after exhausting retries.
func (c *httpClient) postJSON(ctx context.Context, path string, payload any) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, eris.Wrap(err, "exa: marshal request")
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return nil, 0, eris.Wrap(err, "exa: create request")
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "exa: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("exa: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

type contentsRequest struct {
	URLs   []string       `json:"urls"`
	Text   bool           `json:"text"`
	Extras map[string]int `json:"extras,omitempty"`
}

type contentsResponse struct {
	Results []struct {
		URL    string `json:"url"`
		Title  string `json:"title"`
		Text   string `json:"text"`
		Extras struct {
			ImageLinks []string `json:"imageLinks"`
		} `json:"extras"`
	} `json:"results"`
}

func (c *httpClient) Contents(ctx context.Context, targetURL string) (*ContentsResult, error) {
	payload := contentsRequest{
		URLs: []string{targetURL},
		Text: true,
	}
	if c.maxImageLinks > 0 {
		payload.Extras = map[string]int{"imageLinks": c.maxImageLinks}
	}

	body, statusCode, err := c.postJSON(ctx, "/contents", payload)
	if err != nil {
		return nil, eris.Wrap(err, "exa: contents request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("exa: contents unexpected status %d: %s", statusCode, string(body))
	}

	var result contentsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "exa: unmarshal contents response")
	}
	if len(result.Results) == 0 {
		return nil, eris.Errorf("exa: no content returned for %s", targetURL)
	}

	r := result.Results[0]
	return &ContentsResult{
		URL:        r.URL,
		Title:      r.Title,
		Text:       r.Text,
		ImageLinks: r.Extras.ImageLinks,
	}, nil
}

type searchRequest struct {
	Query      string         `json:"query"`
	NumResults int            `json:"numResults"`
	Contents   map[string]any `json:"contents"`
}

type searchResponse struct {
	Results []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Text  string `json:"text"`
	} `json:"results"`
}

func (c *httpClient) Search(ctx context.Context, query string, numResults int) ([]SearchResult, error) {
	if numResults <= 0 {
		numResults = 3
	}

	body, statusCode, err := c.postJSON(ctx, "/search", searchRequest{
		Query:      query,
		NumResults: numResults,
		Contents:   map[string]any{"text": true},
	})
	if err != nil {
		return nil, eris.Wrap(err, "exa: search request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("exa: search unexpected status %d: %s", statusCode, string(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "exa: unmarshal search response")
	}

	out := make([]SearchResult, 0, len(result.Results))
	for _, r := range result.Results {
		out = append(out, SearchResult{Title: r.Title, URL: r.URL, Text: r.Text})
	}
	return out, nil
}
