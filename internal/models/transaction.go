package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Method tags a transaction as a buy or a sell
type Method string

const (
	MethodBuy  Method = "BUY"
	MethodSell Method = "SELL"
)

func (m Method) Valid() bool {
	return m == MethodBuy || m == MethodSell
}

// Transaction is the immutable record of one buy or sell.
// ShareCount is stored unsigned; the signed delta is recovered from Method.
type Transaction struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	Symbol        string          `json:"symbol"`
	ShareCount    int64           `json:"share_count"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	Method        Method          `json:"method"`
	Timestamp     time.Time       `json:"timestamp"` // assigned at commit
}

// SignedShares returns the holding delta this transaction applied:
// positive for a buy, negative for a sell.
func (t Transaction) SignedShares() int64 {
	if t.Method == MethodSell {
		return -t.ShareCount
	}
	return t.ShareCount
}

// TotalValue is |shares| x price.
func (t Transaction) TotalValue() decimal.Decimal {
	return t.PricePerShare.Mul(decimal.NewFromInt(t.ShareCount))
}

// HistoryEntry is one row of an account's history listing.
type HistoryEntry struct {
	Symbol        string          `json:"symbol"`
	Shares        int64           `json:"shares"` // signed
	Method        Method          `json:"method"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	TotalValue    decimal.Decimal `json:"total_value"`
	Timestamp     time.Time       `json:"timestamp"`
}
