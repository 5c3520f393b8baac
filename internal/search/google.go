// Package search queries Google Custom Search and formats results as
// conversation context.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/convo-go/internal/metrics"
)

const (
	// DefaultEndpoint is the Custom Search JSON API endpoint.
	DefaultEndpoint = "https://www.googleapis.com/customsearch/v1"

	// DefaultNumResults is how many results a query returns.
	DefaultNumResults = 3
)

// ErrNotConfigured is returned when no API key or engine id is set.
var ErrNotConfigured = errors.New("web search not configured")

// Result is one search hit.
type Result struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Client calls the Custom Search JSON API.
type Client struct {
	apiKey   string
	engineID string
	endpoint string
	num      int
	client   *http.Client
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithMetrics records query timings.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Client) { c.metrics = collector }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a search client. Missing credentials are not an error
// here; Search reports ErrNotConfigured instead.
func NewClient(apiKey, engineID string, opts ...Option) *Client {
	c := &Client{
		apiKey:   apiKey,
		engineID: engineID,
		endpoint: DefaultEndpoint,
		num:      DefaultNumResults,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.engineID != ""
}

type customSearchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search runs query and returns up to three results. An empty query returns
// no results without calling the API.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	results, err := c.search(ctx, query)
	if err != nil {
		c.metrics.RecordFailure(metrics.OpWebSearch)
		return nil, err
	}
	c.metrics.RecordTiming(metrics.OpWebSearch, time.Since(start))
	c.logger.DebugContext(ctx, "web search", "query", query, "results", len(results))
	return results, nil
}

func (c *Client) search(ctx context.Context, query string) ([]Result, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(c.num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("search API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed customSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, Result{Name: item.Title, URL: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}

// FormatContext renders results as the text of a side-channel system
// message. It returns "" when there are no results.
func FormatContext(query string, results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	if query != "" {
		fmt.Fprintf(&b, "Web search results for %q:\n", query)
	} else {
		b.WriteString("Web search results:\n")
	}
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n", i+1, r.Name, r.URL)
		if s := strings.TrimSpace(r.Snippet); s != "" {
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}
