// Package marketdata provides an EOD price client for symbol-linked positions.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
	"github.com/tally-app/tally/internal/models"
)

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second

	// lookbackDays pads the fetch window so weekend and holiday dates
	// resolve to the prior trading day's close.
	lookbackDays = 7
)

// Client fetches end-of-day prices from an EODHD-compatible API.
type Client struct {
	baseURL    string
	apiKey     string
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

// NewClient creates a new market data client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
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
func NewClientFromConfig(cfg common.MarketDataConfig, logger *common.Logger) *Client {
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
	return NewClient(cfg.APIKey, opts...)
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("market data API request")

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

// eodBar represents one end-of-day row from the API.
type eodBar struct {
	Date          string  `json:"date"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
	Volume        int64   `json:"volume"`
}

// fetchBars retrieves EOD bars for marketID covering [fromDate, toDate] in
// ascending date order.
func (c *Client) fetchBars(ctx context.Context, marketID, fromDate, toDate string) ([]eodBar, error) {
	params := url.Values{}
	params.Set("period", "d")
	params.Set("order", "a")
	params.Set("from", fromDate)
	params.Set("to", toDate)

	var bars []eodBar
	if err := c.get(ctx, fmt.Sprintf("/eod/%s", marketID), params, &bars); err != nil {
		return nil, err
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}

// priceAtOrBefore picks the close of the latest bar dated at or before date.
func priceAtOrBefore(bars []eodBar, date string) (float64, bool) {
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Date <= date {
			if bars[i].Close > 0 {
				return bars[i].Close, true
			}
			return 0, false
		}
	}
	return 0, false
}

// GetPrice returns the price effective on or before date for one market
// identifier.
func (c *Client) GetPrice(ctx context.Context, marketID, date string) (float64, bool, error) {
	prices, err := c.GetPrices(ctx, []string{marketID}, []string{date})
	if err != nil {
		return 0, false, err
	}
	price, ok := prices.Lookup(marketID, date)
	return price, ok, nil
}

// GetPrices batch-resolves prices for the cross product of marketIDs and
// dates. One EOD request is made per market identifier covering the full
// date span; missing prices are absent from the result.
func (c *Client) GetPrices(ctx context.Context, marketIDs []string, dates []string) (models.PriceMap, error) {
	result := make(models.PriceMap)
	if len(marketIDs) == 0 || len(dates) == 0 {
		return result, nil
	}

	minDate, maxDate := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d < minDate {
			minDate = d
		}
		if d > maxDate {
			maxDate = d
		}
	}

	from := minDate
	if t, err := time.Parse("2006-01-02", minDate); err == nil {
		from = t.AddDate(0, 0, -lookbackDays).Format("2006-01-02")
	}

	for _, id := range marketIDs {
		bars, err := c.fetchBars(ctx, id, from, maxDate)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch prices for %s: %w", id, err)
		}

		for _, d := range dates {
			if price, ok := priceAtOrBefore(bars, d); ok {
				result[models.PriceKey(id, d)] = price
			}
		}
	}

	c.logger.Debug().
		Int("markets", len(marketIDs)).
		Int("dates", len(dates)).
		Int("resolved", len(result)).
		Msg("resolved market prices")

	return result, nil
}

// Ensure Client implements PriceProvider
var _ interfaces.PriceProvider = (*Client)(nil)
