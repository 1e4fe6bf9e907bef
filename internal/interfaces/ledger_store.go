package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
)

// LedgerStore is the durable record of accounts, holdings and transactions.
type LedgerStore interface {
	CreateAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, accountId string) (models.Account, error)

	// ListHoldings returns the owned positions of an account (share count > 0), ordered by symbol.
	ListHoldings(ctx context.Context, accountId string) ([]models.Holding, error)

	// ListTransactions returns the account history, newest first.
	ListTransactions(ctx context.Context, accountId string) ([]models.Transaction, error)

	// WithinTx runs fn as one all-or-nothing unit scoped to accountId.
	// If fn or the commit fails, none of the writes made through tx are applied.
	// fn must not call back into the store itself.
	WithinTx(ctx context.Context, accountId string, fn func(tx LedgerTx) error) error
}

// LedgerTx is the mutating view of the store inside WithinTx. Reads observe the
// unit's own pending writes. Writes to any account other than the one the unit
// was opened for fail with storage.ErrCrossAccountWrite.
type LedgerTx interface {
	GetAccount(ctx context.Context, accountId string) (models.Account, error)

	// GetHolding returns a zero-share holding when the pair has none.
	GetHolding(ctx context.Context, accountId, symbol string) (models.Holding, error)

	// AdjustCash adds delta to the cash balance and returns the new balance.
	// A result below zero fails with storage.ErrNegativeBalance.
	AdjustCash(ctx context.Context, accountId string, delta decimal.Decimal) (decimal.Decimal, error)

	// UpsertHolding adds deltaShares to the holding, creating it when absent,
	// and returns the new share count. A result below zero fails with
	// storage.ErrNegativeShares.
	UpsertHolding(ctx context.Context, accountId, symbol string, deltaShares int64) (int64, error)

	AppendTransaction(ctx context.Context, record models.Transaction) error
}
