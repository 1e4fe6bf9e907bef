// Package quote resolves ticker symbols to prices for the trading ledger.
package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/stock-trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
)

var (
	// ErrNotFound means the provider has no usable quote for the symbol.
	ErrNotFound = errors.New("symbol not found")
	// ErrUnavailable means the provider could not be reached or timed out.
	ErrUnavailable = errors.New("quote provider unavailable")
)

const DefaultTimeout = 5 * time.Second

// Normalize trims and upper-cases a symbol. No other rewriting is done.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Gateway wraps a QuoteProvider: it normalizes the symbol, bounds the call
// with a timeout, rejects non-positive prices and classifies failures as
// ErrNotFound or ErrUnavailable. With a cache configured, a quote is reused
// only while it is younger than the staleness bound.
type Gateway struct {
	provider interfaces.QuoteProvider
	timeout  time.Duration
	maxAge   time.Duration
	cache    *ristretto.Cache
	logger   *zap.Logger
	now      func() time.Time // injectable clock for testing
}

type Option func(*Gateway)

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxStaleness enables the quote cache. Zero disables it.
func WithMaxStaleness(d time.Duration) Option {
	return func(g *Gateway) {
		g.maxAge = d
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func withClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

func NewGateway(provider interfaces.QuoteProvider, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		provider: provider,
		timeout:  DefaultTimeout,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.maxAge > 0 {
		c, err := ristretto.NewCache(&ristretto.Config{
			NumCounters:        1e4,
			MaxCost:            1 << 12, // entries, each costs 1
			BufferItems:        64,
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, fmt.Errorf("quote cache: %w", err)
		}
		g.cache = c
	}
	return g, nil
}

// Close releases the cache.
func (g *Gateway) Close() {
	if g.cache != nil {
		g.cache.Close()
	}
}

func (g *Gateway) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	sym := Normalize(symbol)
	if sym == "" {
		return models.Quote{}, fmt.Errorf("%w: empty symbol", ErrNotFound)
	}

	if q, ok := g.cached(sym); ok {
		return q, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	q, err := g.provider.Lookup(ctx, sym)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.Quote{}, fmt.Errorf("%w: %s", ErrNotFound, sym)
		}
		g.logger.Warn("quote provider failed", zap.String("symbol", sym), zap.Error(err))
		return models.Quote{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, sym, err)
	}
	if !q.Price.IsPositive() {
		return models.Quote{}, fmt.Errorf("%w: %s has no usable price", ErrNotFound, sym)
	}

	q.Symbol = Normalize(q.Symbol)
	if q.Symbol == "" {
		q.Symbol = sym
	}
	if q.Name == "" {
		q.Name = q.Symbol
	}
	if q.FetchedAt.IsZero() {
		q.FetchedAt = g.now()
	}

	if g.cache != nil {
		g.cache.SetWithTTL(sym, q, 1, g.maxAge)
	}
	return q, nil
}

func (g *Gateway) cached(sym string) (models.Quote, bool) {
	if g.cache == nil {
		return models.Quote{}, false
	}
	v, ok := g.cache.Get(sym)
	if !ok {
		return models.Quote{}, false
	}
	q, ok := v.(models.Quote)
	if !ok || g.now().Sub(q.FetchedAt) > g.maxAge {
		return models.Quote{}, false
	}
	return q, true
}

var _ interfaces.QuoteGateway = (*Gateway)(nil)
