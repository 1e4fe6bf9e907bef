package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Lookup(ctx context.Context, symbol string) (models.Quote, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(models.Quote), args.Error(1)
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestGatewayNormalizesSymbol(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Lookup", mock.Anything, "AAPL").
		Return(models.Quote{Symbol: "aapl", Name: "Apple Inc.", Price: price("150.00")}, nil).Once()

	g, err := NewGateway(provider)
	require.NoError(t, err)

	q, err := g.Quote(context.Background(), "  aapl ")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "Apple Inc.", q.Name)
	assert.True(t, price("150").Equal(q.Price))
	assert.False(t, q.FetchedAt.IsZero())
	provider.AssertExpectations(t)
}

func TestGatewayKeepsProviderCanonicalSymbol(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Lookup", mock.Anything, "BRK-B").
		Return(models.Quote{Symbol: "BRK-B", Price: price("410.12")}, nil)

	g, err := NewGateway(provider)
	require.NoError(t, err)

	q, err := g.Quote(context.Background(), "brk-b")
	require.NoError(t, err)
	assert.Equal(t, "BRK-B", q.Symbol)
	assert.Equal(t, "BRK-B", q.Name, "name falls back to the symbol")
}

func TestGatewayClassifiesFailures(t *testing.T) {
	tests := []struct {
		name  string
		quote models.Quote
		err   error
		want  error
	}{
		{name: "not found", err: ErrNotFound, want: ErrNotFound},
		{name: "zero price", quote: models.Quote{Symbol: "X", Price: decimal.Zero}, want: ErrNotFound},
		{name: "negative price", quote: models.Quote{Symbol: "X", Price: price("-1")}, want: ErrNotFound},
		{name: "transport", err: errors.New("connection refused"), want: ErrUnavailable},
		{name: "api error", err: &APIError{StatusCode: 500, Message: "boom", Symbol: "X"}, want: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{}
			provider.On("Lookup", mock.Anything, "X").Return(tt.quote, tt.err)

			g, err := NewGateway(provider)
			require.NoError(t, err)

			_, err = g.Quote(context.Background(), "x")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGatewayEmptySymbol(t *testing.T) {
	provider := &mockProvider{}
	g, err := NewGateway(provider)
	require.NoError(t, err)

	_, err = g.Quote(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
	provider.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
}

func TestGatewayTimeout(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Lookup", mock.Anything, "SLOW").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(models.Quote{}, context.DeadlineExceeded)

	g, err := NewGateway(provider, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = g.Quote(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGatewayCacheStaleness(t *testing.T) {
	clock := time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)
	provider := &mockProvider{}
	provider.On("Lookup", mock.Anything, "MSFT").
		Return(models.Quote{Symbol: "MSFT", Name: "Microsoft", Price: price("400"), FetchedAt: clock}, nil).Once()

	g, err := NewGateway(provider,
		WithMaxStaleness(15*time.Second),
		withClock(func() time.Time { return clock }),
	)
	require.NoError(t, err)
	defer g.Close()

	_, err = g.Quote(context.Background(), "MSFT")
	require.NoError(t, err)
	g.cache.Wait()

	clock = clock.Add(10 * time.Second)
	q, err := g.Quote(context.Background(), "msft")
	require.NoError(t, err)
	assert.True(t, price("400").Equal(q.Price))
	provider.AssertNumberOfCalls(t, "Lookup", 1)

	provider.On("Lookup", mock.Anything, "MSFT").
		Return(models.Quote{Symbol: "MSFT", Name: "Microsoft", Price: price("401"), FetchedAt: clock.Add(10 * time.Second)}, nil).Once()
	clock = clock.Add(10 * time.Second)
	q, err = g.Quote(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.True(t, price("401").Equal(q.Price), "stale entry must be refreshed")
	provider.AssertNumberOfCalls(t, "Lookup", 2)
}

func TestGatewayDoesNotCacheFailures(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Lookup", mock.Anything, "IBM").Return(models.Quote{}, errors.New("timeout")).Once()
	provider.On("Lookup", mock.Anything, "IBM").Return(models.Quote{Symbol: "IBM", Price: price("200")}, nil).Once()

	g, err := NewGateway(provider, WithMaxStaleness(time.Minute))
	require.NoError(t, err)
	defer g.Close()

	_, err = g.Quote(context.Background(), "IBM")
	require.ErrorIs(t, err, ErrUnavailable)

	q, err := g.Quote(context.Background(), "IBM")
	require.NoError(t, err)
	assert.True(t, price("200").Equal(q.Price))
}
