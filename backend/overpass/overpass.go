// Package overpass provides a backend.Source for Overpass-style POI search APIs.
package overpass

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

	"github.com/pkg/errors"

	"swood/backend"
	"swood/internal/clock"
	"swood/internal/ratelimit"
	"swood/internal/retry"
	"swood/internal/utils"
)

const (
	// DefaultEndpoint is the public Overpass interpreter used when none is configured
	DefaultEndpoint = "https://overpass.kumi.systems/api/interpreter"

	// DefaultTimeout bounds a single HTTP attempt
	DefaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of a failed response body ends up in an error
	maxErrorBody = 200
)

// ErrFetchFailed is returned when every attempt failed without a recorded error
var ErrFetchFailed = retry.ErrExhausted

// Config holds Overpass connection settings
type Config struct {
	Endpoint   string        // Override for testing or a private mirror
	Token      string        // Optional bearer token
	UserAgent  string        // Defaults to "swood"
	Timeout    time.Duration // Per-attempt transport timeout
	HTTPClient *http.Client  // Optional; Timeout is ignored when set
	Policy     retry.Policy  // Zero value means retry.DefaultPolicy
	Clock      clock.Clock   // Drives retry delays
	Stats      *retry.Stats  // Optional attempt counters
	RateLimits *ratelimit.Stats
}

// Client implements backend.Source against an Overpass API
type Client struct {
	endpoint  string
	token     string
	userAgent string
	http      *http.Client
	policy    retry.Policy
	clock     clock.Clock
	stats     *retry.Stats
	limits    *ratelimit.Stats
}

// New creates a new Overpass client
func New(cfg Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	policy := cfg.Policy
	if policy.MaxAttempts == 0 && policy.Delay == 0 {
		policy = retry.DefaultPolicy
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "swood"
	}

	return &Client{
		endpoint:  endpoint,
		token:     cfg.Token,
		userAgent: userAgent,
		http:      httpClient,
		policy:    policy,
		clock:     clk,
		stats:     cfg.Stats,
		limits:    cfg.RateLimits,
	}
}

// Close releases idle connections
func (c *Client) Close() error {
	if transport, ok := c.http.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// BuildQuery returns the Overpass QL query for restaurants (nodes and ways)
// within radiusMeters of lat/lon.
func BuildQuery(lat, lon float64, radiusMeters int) string {
	around := fmt.Sprintf("(around:%d,%s,%s)", radiusMeters, formatCoord(lat), formatCoord(lon))
	var b strings.Builder
	b.WriteString("[out:json][timeout:25];\n(\n")
	b.WriteString(`  node["amenity"="restaurant"]` + around + ";\n")
	b.WriteString(`  way["amenity"="restaurant"]` + around + ";\n")
	b.WriteString(");\nout center;\n")
	return b.String()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FetchNearby queries restaurants around lat/lon. It retries every failed
// attempt under the client's retry policy, waiting longer when a 429 carries
// Retry-After, and
// returns either the full normalized list or the last error.
func (c *Client) FetchNearby(ctx context.Context, lat, lon float64, radiusMeters int) ([]backend.Restaurant, error) {
	reqURL := c.endpoint + "?data=" + url.QueryEscape(BuildQuery(lat, lon, radiusMeters))

	m := retry.NewMachine(c.policy, c.clock).WithStats(c.stats)
	var result []backend.Restaurant

	for m.Begin() {
		elements, err := c.attempt(ctx, reqURL)
		if err != nil {
			utils.Warnf("overpass attempt %d/%d failed: %v", m.Attempt(), m.MaxAttempts(), err)
			m.Fail(ctx, err)
			continue
		}
		result = Normalize(elements)
		m.Succeed()
	}

	if err := m.Err(); err != nil {
		return nil, err
	}
	utils.Debugf("overpass returned %d restaurants after %d attempt(s)", len(result), m.Attempt())
	return result, nil
}

// attempt performs one HTTP round trip and decodes the elements array
func (c *Client) attempt(ctx context.Context, reqURL string) ([]Element, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusServiceUnavailable:
		return nil, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Temporary: true}
	case http.StatusTooManyRequests:
		now := c.clock.Now()
		if c.limits != nil {
			c.limits.RecordRateLimit(now)
		}
		wait := ratelimit.Wait(ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After"), now))
		return nil, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Temporary: true, RetryAfter: wait}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}

	var payload Response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &InvalidResponseError{Reason: errors.Wrap(err, "malformed JSON").Error()}
	}
	if payload.Elements == nil {
		return nil, &InvalidResponseError{Reason: "missing elements"}
	}
	return *payload.Elements, nil
}

var _ backend.Source = (*Client)(nil)
