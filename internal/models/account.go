package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a user's simulated trading wallet
type Account struct {
	ID          string          `json:"id"`
	CashBalance decimal.Decimal `json:"cash_balance"` // never negative
	CreatedAt   time.Time       `json:"created_at"`
}
