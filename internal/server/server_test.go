package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/stock-trading-ledger/internal/ledger"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/quote"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/storage/memory"
)

type staticQuotes struct {
	mu     sync.Mutex
	prices map[string]string
	down   bool
}

func (q *staticQuotes) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.down {
		return models.Quote{}, quote.ErrUnavailable
	}
	sym := quote.Normalize(symbol)
	p, ok := q.prices[sym]
	if !ok {
		return models.Quote{}, quote.ErrNotFound
	}
	return models.Quote{Symbol: sym, Name: sym + " Inc.", Price: decimal.RequireFromString(p)}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *staticQuotes) {
	t.Helper()
	quotes := &staticQuotes{prices: map[string]string{"AAPL": "150.00"}}
	l := ledger.NewLedger(memory.NewMemoryLedgerStore(), quotes)
	srv := httptest.NewServer(NewServer(l, decimal.RequireFromString("10000.00")).Handler())
	t.Cleanup(srv.Close)
	return srv, quotes
}

func do(t *testing.T, srv *httptest.Server, method, path, account, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if account != "" {
		req.Header.Set(AccountHeader, account)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	asMap, _ := payload.(map[string]any)
	if asMap == nil {
		asMap = map[string]any{"items": payload}
	}
	return resp, asMap
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := do(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestTradingFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, srv, http.MethodPost, "/api/v1/accounts", "alice", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "alice", body["id"])

	resp, body = do(t, srv, http.MethodPost, "/api/v1/portfolio/buy", "alice", `{"symbol":"aapl","shares":10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "1500", body["total_cost"])

	resp, body = do(t, srv, http.MethodPost, "/api/v1/portfolio/sell", "alice", `{"symbol":"AAPL","shares":"4"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(6), body["remaining_shares"])

	resp, body = do(t, srv, http.MethodGet, "/api/v1/portfolio/cash", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "9100", body["cash"])

	resp, body = do(t, srv, http.MethodGet, "/api/v1/portfolio/holdings", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	holdings := body["holdings"].([]any)
	require.Len(t, holdings, 1)
	assert.Equal(t, "900", holdings[0].(map[string]any)["market_value"])
	assert.Equal(t, "10000", body["total"])

	resp, body = do(t, srv, http.MethodGet, "/api/v1/portfolio/history", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := body["items"].([]any)
	require.Len(t, history, 2)
	assert.Equal(t, "SELL", history[0].(map[string]any)["method"])
	assert.Equal(t, float64(-4), history[0].(map[string]any)["shares"])
}

func TestErrorMapping(t *testing.T) {
	srv, quotes := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/v1/accounts", "bob", "")

	tests := []struct {
		name    string
		path    string
		account string
		body    string
		status  int
		kind    string
	}{
		{"missing account header", "/api/v1/portfolio/buy", "", `{"symbol":"AAPL","shares":1}`, http.StatusUnauthorized, "unauthorized"},
		{"fractional shares", "/api/v1/portfolio/buy", "bob", `{"symbol":"AAPL","shares":1.5}`, http.StatusBadRequest, "invalid_input"},
		{"non numeric shares", "/api/v1/portfolio/buy", "bob", `{"symbol":"AAPL","shares":"ten"}`, http.StatusBadRequest, "invalid_input"},
		{"missing shares", "/api/v1/portfolio/buy", "bob", `{"symbol":"AAPL"}`, http.StatusBadRequest, "invalid_input"},
		{"zero shares", "/api/v1/portfolio/buy", "bob", `{"symbol":"AAPL","shares":0}`, http.StatusBadRequest, "invalid_input"},
		{"malformed body", "/api/v1/portfolio/buy", "bob", `{`, http.StatusBadRequest, "invalid_input"},
		{"unknown symbol", "/api/v1/portfolio/buy", "bob", `{"symbol":"NOPE","shares":1}`, http.StatusNotFound, "symbol_not_found"},
		{"unknown account", "/api/v1/portfolio/buy", "ghost", `{"symbol":"AAPL","shares":1}`, http.StatusNotFound, "account_not_found"},
		{"insufficient funds", "/api/v1/portfolio/buy", "bob", `{"symbol":"AAPL","shares":1000}`, http.StatusUnprocessableEntity, "insufficient_funds"},
		{"insufficient shares", "/api/v1/portfolio/sell", "bob", `{"symbol":"AAPL","shares":1}`, http.StatusUnprocessableEntity, "insufficient_shares"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, srv, http.MethodPost, tt.path, tt.account, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.kind, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}

	quotes.mu.Lock()
	quotes.down = true
	quotes.mu.Unlock()
	resp, body := do(t, srv, http.MethodPost, "/api/v1/portfolio/buy", "bob", `{"symbol":"AAPL","shares":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "quote_unavailable", body["error"])

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/accounts", "bob", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, srv, http.MethodGet, "/api/v1/portfolio/cash", "bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10000", body["cash"], "rejected trades leave cash untouched")
}

func TestQuoteEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, srv, http.MethodGet, "/api/v1/quotes/aapl", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "150", body["price"])

	resp, body = do(t, srv, http.MethodGet, "/api/v1/quotes/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["message"], "suffix")
}

func TestParseShares(t *testing.T) {
	tests := map[string]struct {
		raw  string
		want int64
		ok   bool
	}{
		"integer":        {`12`, 12, true},
		"string integer": {`"7"`, 7, true},
		"exponent":       {`1e2`, 100, true},
		"trailing zero":  {`3.0`, 3, true},
		"negative":       {`-2`, -2, true},
		"fraction":       {`2.5`, 0, false},
		"null":           {`null`, 0, false},
		"empty":          {``, 0, false},
		"word":           {`"many"`, 0, false},
		"overflow":       {`99999999999999999999`, 0, false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := parseShares(json.RawMessage(tt.raw))
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, http.StatusInternalServerError, statusFor(ledger.ErrStoreFailure))
}
