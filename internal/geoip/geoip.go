// Package geoip resolves client IP addresses to two-letter country codes for
// audit-record enrichment. Resolution is layered: a Redis-backed cache with a
// 7-day TTL sits in front of an external HTTP lookup service, and outbound
// calls to that service are rate limited so a flood of uncached IPs (or a
// misbehaving provider returning errors on every request) cannot turn the
// audit pipeline into a denial-of-service amplifier against the provider.
//
// The HTTP client uses a strict 2-second timeout. The lookup happens inline
// on the request path — an audit record is written synchronously with the
// change it describes — so an unbounded geo lookup would directly inflate
// user-visible request latency. Two seconds is long enough for a healthy
// provider and short enough that a dead one degrades requests instead of
// hanging them.
//
// Failures are returned as typed errors, never swallowed. The caller (the
// audit recorder) decides to substitute the CountryUnknown sentinel; this
// package does not make that call, and it never writes a failure into the
// cache.
package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CountryUnknown is the sentinel substituted by callers when resolution
// fails. It is not a value this package ever returns alongside a nil error.
const CountryUnknown = "XX"

// DefaultTimeout bounds a single external lookup call.
const DefaultTimeout = 2 * time.Second

// ErrRateLimited is returned when the outbound limiter denies an external
// lookup. The caller should treat the country as unknown without caching.
var ErrRateLimited = errors.New("geoip: outbound lookup rate limited")

// Resolver resolves an IP address to an ISO 3166-1 alpha-2 country code.
type Resolver interface {
	Country(ctx context.Context, ip string) (string, error)
}

// Client is an HTTP client for an ip-api style lookup service exposing
// GET <base>/<ip> returning a JSON body with a country_code field.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a lookup client against baseURL. A zero timeout falls
// back to DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// lookupResponse is the subset of the provider's response body we read.
type lookupResponse struct {
	CountryCode string `json:"country_code"`
}

// Country performs one external lookup. Any transport error, non-2xx status,
// malformed body, or empty country code is returned as an error; it is the
// caller's decision to substitute CountryUnknown.
func (c *Client) Country(ctx context.Context, ip string) (string, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("geoip lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("geoip lookup returned status %d", resp.StatusCode)
	}

	// Cap the body read; a well-formed response is a few dozen bytes.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read lookup response: %w", err)
	}

	var parsed lookupResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("malformed lookup response: %w", err)
	}

	cc := strings.ToUpper(strings.TrimSpace(parsed.CountryCode))
	if len(cc) != 2 {
		return "", fmt.Errorf("lookup response missing country_code")
	}

	return cc, nil
}
