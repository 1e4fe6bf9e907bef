package models

import "github.com/shopspring/decimal"

// Holding is the current share count of one symbol owned by one account.
// It is keyed by (AccountID, Symbol) and is a projection of the account's
// transaction history.
type Holding struct {
	AccountID  string `json:"account_id"`
	Symbol     string `json:"symbol"` // canonical, upper case
	ShareCount int64  `json:"share_count"`
}

// Owned reports whether the holding counts as an owned position.
func (h Holding) Owned() bool {
	return h.ShareCount > 0
}

// ValuedHolding is one row of a valuation snapshot. Name, CurrentPrice and
// MarketValue are nil when the symbol could not be priced.
type ValuedHolding struct {
	Symbol           string           `json:"symbol"`
	Name             *string          `json:"name,omitempty"`
	Shares           int64            `json:"shares"`
	CurrentPrice     *decimal.Decimal `json:"current_price,omitempty"`
	MarketValue      *decimal.Decimal `json:"market_value,omitempty"`
	PriceUnavailable bool             `json:"price_unavailable"`
}

// Valuation combines an account's owned holdings with current quotes.
type Valuation struct {
	AccountID     string          `json:"account_id"`
	Holdings      []ValuedHolding `json:"holdings"`
	Cash          decimal.Decimal `json:"cash"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	Total         decimal.Decimal `json:"total"`
	Unpriced      []string        `json:"unpriced,omitempty"` // symbols whose quote failed
}
