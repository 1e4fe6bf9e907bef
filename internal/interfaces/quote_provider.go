package interfaces

import (
	"context"

	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
)

// QuoteProvider is the external source of prices. Implementations return
// quote.ErrNotFound when the symbol has no data; any other error is treated as
// the provider being unavailable.
type QuoteProvider interface {
	Lookup(ctx context.Context, symbol string) (models.Quote, error)
}

// QuoteGateway resolves a symbol to a usable quote for the Portfolio Engine.
type QuoteGateway interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
}
