package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sheikh-saqib/stock-trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
)

const (
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultRateLimit = 5 // requests per second
	userAgent        = "stock-trading-ledger/1.0"
)

// YahooClient looks up quotes from a Yahoo Finance style chart endpoint.
type YahooClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

type ClientOption func(*YahooClient)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *YahooClient) {
		c.baseURL = baseURL
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *YahooClient) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *YahooClient) {
		c.httpClient = hc
	}
}

func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *YahooClient) {
		c.logger = logger
	}
}

func NewYahooClient(opts ...ClientOption) *YahooClient {
	c := &YahooClient{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-success answer other than "not found".
type APIError struct {
	StatusCode int
	Message    string
	Symbol     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quote API error: %s (status: %d, symbol: %s)", e.Message, e.StatusCode, e.Symbol)
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string          `json:"symbol"`
		LongName           string          `json:"longName"`
		ShortName          string          `json:"shortName"`
		RegularMarketPrice json.RawMessage `json:"regularMarketPrice"`
	} `json:"meta"`
	Indicators struct {
		Quote []struct {
			Close []json.RawMessage `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// Lookup fetches the latest price for symbol. The price is the regular market
// price, or the last daily close when that is missing, rounded to cents.
func (c *YahooClient) Lookup(ctx context.Context, symbol string) (models.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return models.Quote{}, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("range", "5d")
	params.Set("interval", "1d")
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("quote request", zap.String("symbol", symbol))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.Quote{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return models.Quote{}, &APIError{StatusCode: resp.StatusCode, Message: string(body), Symbol: symbol}
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return models.Quote{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if e := chart.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return models.Quote{}, ErrNotFound
		}
		return models.Quote{}, &APIError{StatusCode: resp.StatusCode, Message: e.Description, Symbol: symbol}
	}
	if len(chart.Chart.Result) == 0 {
		return models.Quote{}, ErrNotFound
	}

	result := chart.Chart.Result[0]
	price := parsePrice(result.Meta.RegularMarketPrice)
	if !price.IsPositive() && len(result.Indicators.Quote) > 0 {
		closes := result.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0 && !price.IsPositive(); i-- {
			price = parsePrice(closes[i])
		}
	}

	name := result.Meta.LongName
	if name == "" {
		name = result.Meta.ShortName
	}
	canonical := result.Meta.Symbol
	if canonical == "" {
		canonical = symbol
	}
	if name == "" {
		name = canonical
	}

	return models.Quote{
		Symbol:    canonical,
		Name:      name,
		Price:     price.Round(2),
		FetchedAt: time.Now(),
	}, nil
}

// parsePrice reads a JSON number or numeric string. Anything else, null
// included, yields zero.
func parsePrice(raw json.RawMessage) decimal.Decimal {
	raw = bytes.Trim(bytes.TrimSpace(raw), `"`)
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}

var _ interfaces.QuoteProvider = (*YahooClient)(nil)
