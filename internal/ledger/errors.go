package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/sheikh-saqib/stock-trading-ledger/internal/quote"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/storage"
)

// Every failure returned by Ledger wraps exactly one of these. All of them are
// recoverable: the ledger state is unchanged when one is returned.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrQuoteUnavailable   = errors.New("quote unavailable")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrStoreFailure       = errors.New("store failure")
)

const suffixHint = "the symbol may need a market suffix, e.g. 'TATAMOTORS.NS' for Indian stocks or 'D05.SI' for Singapore stocks"

var ledgerErrors = []error{
	ErrInvalidInput,
	ErrAccountNotFound,
	ErrAccountExists,
	ErrSymbolNotFound,
	ErrQuoteUnavailable,
	ErrInsufficientFunds,
	ErrInsufficientShares,
	ErrStoreFailure,
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// quoteError classifies a gateway failure for symbol.
func quoteError(symbol string, err error) error {
	if errors.Is(err, quote.ErrNotFound) {
		return fmt.Errorf("%w: could not find stock for %q; %s", ErrSymbolNotFound, symbol, suffixHint)
	}
	return fmt.Errorf("%w: could not get a current price for %q; %s", ErrQuoteUnavailable, symbol, suffixHint)
}

// storeError maps a store failure onto the ledger taxonomy. Errors that already
// belong to it pass through.
func storeError(err error) error {
	for _, known := range ledgerErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	switch {
	case errors.Is(err, storage.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, storage.ErrAccountExists):
		return ErrAccountExists
	case errors.Is(err, storage.ErrNegativeBalance):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case errors.Is(err, storage.ErrNegativeShares):
		return fmt.Errorf("%w: %v", ErrInsufficientShares, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: trade aborted: %v", ErrStoreFailure, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreFailure, err)
}

// Kind names the taxonomy entry of err, for logs and API payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrAccountExists):
		return "account_exists"
	case errors.Is(err, ErrSymbolNotFound):
		return "symbol_not_found"
	case errors.Is(err, ErrQuoteUnavailable):
		return "quote_unavailable"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	default:
		return "store_failure"
	}
}
