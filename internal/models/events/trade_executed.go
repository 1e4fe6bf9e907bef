package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeExecuted struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Symbol        string          `json:"symbol"`
	Method        string          `json:"method"`
	Shares        int64           `json:"shares"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
