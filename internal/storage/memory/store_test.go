package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/stock-trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/storage/storetest"
)

func TestMemoryLedgerStore(t *testing.T) {
	storetest.Run(t, NewMemoryLedgerStore())
}

func TestWithinTxCancelledContext(t *testing.T) {
	store := NewMemoryLedgerStore()
	require.NoError(t, store.CreateAccount(context.Background(), models.Account{ID: "a", CashBalance: decimal.NewFromInt(10)}))

	ctx, cancel := context.WithCancel(context.Background())
	err := store.WithinTx(ctx, "a", func(tx interfaces.LedgerTx) error {
		_, err := tx.AdjustCash(ctx, "a", decimal.NewFromInt(-5))
		cancel()
		return err
	})
	assert.ErrorIs(t, err, context.Canceled)

	account, err := store.GetAccount(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(account.CashBalance))
}

func TestListTransactionsReturnsCopy(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, models.Account{ID: "a"}))
	require.NoError(t, store.WithinTx(ctx, "a", func(tx interfaces.LedgerTx) error {
		return tx.AppendTransaction(ctx, models.Transaction{
			ID: "t1", AccountID: "a", Symbol: "AAPL", ShareCount: 1,
			PricePerShare: decimal.NewFromInt(1), Method: models.MethodBuy, Timestamp: time.Now(),
		})
	}))

	history, err := store.ListTransactions(ctx, "a")
	require.NoError(t, err)
	history[0].Symbol = "TAMPERED"

	again, err := store.ListTransactions(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", again[0].Symbol)
}
