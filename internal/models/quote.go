package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a provider price snapshot for one symbol
type Quote struct {
	Symbol    string          `json:"symbol"` // canonical form reported by the provider
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
}
