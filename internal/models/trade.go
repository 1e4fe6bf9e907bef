package models

import "github.com/shopspring/decimal"

// BuyResult confirms a committed buy
type BuyResult struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// SellResult confirms a committed sell
type SellResult struct {
	Symbol          string          `json:"symbol"`
	Name            string          `json:"name"`
	Shares          int64           `json:"shares"`
	Price           decimal.Decimal `json:"price"`
	Proceeds        decimal.Decimal `json:"proceeds"`
	RemainingShares int64           `json:"remaining_shares"`
}
