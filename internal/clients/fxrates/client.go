// Package fxrates provides an exchange-rate client backed by the
// Frankfurter API.
package fxrates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
	"github.com/tally-app/tally/internal/models"
)

const (
	DefaultBaseURL   = "https://api.frankfurter.dev/v1"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Client fetches historical FX rates. Frankfurter serves the nearest prior
// banking day for weekend and holiday dates, which matches the as-of
// semantics valuations need.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new FX rates client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewClientFromConfig builds a client from the application config.
func NewClientFromConfig(cfg common.FXConfig, logger *common.Logger) *Client {
	opts := []ClientOption{
		WithLogger(logger),
		WithTimeout(cfg.GetTimeout()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, WithRateLimit(cfg.RateLimit))
	}
	return NewClient(opts...)
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("FX API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("FX API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// ratesResponse is Frankfurter's historical rates payload.
type ratesResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// GetRate returns the (currency -> target) rate for date.
func (c *Client) GetRate(ctx context.Context, currency, target, date string) (float64, bool, error) {
	rates, err := c.GetRates(ctx, target, []models.RateRequest{{Currency: currency, Date: date}})
	if err != nil {
		return 0, false, err
	}
	r, ok := rates.Lookup(currency, date)
	return r, ok, nil
}

// GetRates batch-resolves rates into target. Requests are grouped by date so
// each date costs a single request regardless of how many currencies it
// spans. The API quotes target -> currency, so rates are inverted on the way
// out; currencies the API does not cover are absent from the result.
func (c *Client) GetRates(ctx context.Context, target string, requests []models.RateRequest) (models.RateMap, error) {
	result := make(models.RateMap)
	if target == "" || len(requests) == 0 {
		return result, nil
	}

	byDate := make(map[string][]string)
	for _, req := range requests {
		if req.Currency == "" || req.Currency == target {
			continue
		}
		found := false
		for _, cur := range byDate[req.Date] {
			if cur == req.Currency {
				found = true
				break
			}
		}
		if !found {
			byDate[req.Date] = append(byDate[req.Date], req.Currency)
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, date := range dates {
		currencies := byDate[date]
		sort.Strings(currencies)

		params := url.Values{}
		params.Set("base", target)
		params.Set("symbols", strings.Join(currencies, ","))

		var resp ratesResponse
		if err := c.get(ctx, "/"+date, params, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch rates for %s: %w", date, err)
		}

		for _, currency := range currencies {
			r, ok := resp.Rates[currency]
			if !ok || r == 0 {
				continue
			}
			result[models.RateKey(currency, date)] = 1 / r
		}
	}

	c.logger.Debug().
		Str("target", target).
		Int("requests", len(requests)).
		Int("resolved", len(result)).
		Msg("resolved FX rates")

	return result, nil
}

// Ensure Client implements FXProvider
var _ interfaces.FXProvider = (*Client)(nil)
