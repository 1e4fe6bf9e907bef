// Package storetest is a conformance suite every Ledger Store driver runs.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/stock-trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/storage"
)

var errAbort = errors.New("abort")

// Run exercises store against the Ledger Store contract. Account ids are
// random so a persistent backend can be reused across runs.
func Run(t *testing.T, store interfaces.LedgerStore) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, store) })
	t.Run("commit", func(t *testing.T) { testCommit(t, store) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, store) })
	t.Run("guards", func(t *testing.T) { testGuards(t, store) })
	t.Run("scope", func(t *testing.T) { testScope(t, store) })
	t.Run("zero holdings", func(t *testing.T) { testZeroHoldings(t, store) })
	t.Run("history order", func(t *testing.T) { testHistoryOrder(t, store) })
}

func newAccount(t *testing.T, store interfaces.LedgerStore, cash string) string {
	t.Helper()
	id := "acct-" + uuid.NewString()
	require.NoError(t, store.CreateAccount(context.Background(), models.Account{
		ID:          id,
		CashBalance: decimal.RequireFromString(cash),
		CreatedAt:   now(),
	}))
	return id
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func record(accountId, symbol string, shares int64, price string, method models.Method, ts time.Time) models.Transaction {
	return models.Transaction{
		ID:            uuid.NewString(),
		AccountID:     accountId,
		Symbol:        symbol,
		ShareCount:    shares,
		PricePerShare: decimal.RequireFromString(price),
		Method:        method,
		Timestamp:     ts,
	}
}

func assertCash(t *testing.T, store interfaces.LedgerStore, accountId, want string) {
	t.Helper()
	account, err := store.GetAccount(context.Background(), accountId)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString(want).Equal(account.CashBalance), "cash: want %s, got %s", want, account.CashBalance)
}

func testAccounts(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	id := newAccount(t, store, "10000")
	assertCash(t, store, id, "10000")

	err := store.CreateAccount(ctx, models.Account{ID: id, CashBalance: decimal.NewFromInt(1), CreatedAt: now()})
	assert.ErrorIs(t, err, storage.ErrAccountExists)
	assertCash(t, store, id, "10000")

	missing := "missing-" + uuid.NewString()
	_, err = store.GetAccount(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	_, err = store.ListHoldings(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	_, err = store.ListTransactions(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	err = store.WithinTx(ctx, missing, func(tx interfaces.LedgerTx) error { return nil })
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)

	holdings, err := store.ListHoldings(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, holdings)
	history, err := store.ListTransactions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func testCommit(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	id := newAccount(t, store, "10000")
	buy := record(id, "AAPL", 10, "150", models.MethodBuy, now())

	err := store.WithinTx(ctx, id, func(tx interfaces.LedgerTx) error {
		balance, err := tx.AdjustCash(ctx, id, decimal.NewFromInt(-1500))
		if err != nil {
			return err
		}
		assert.True(t, decimal.NewFromInt(8500).Equal(balance))

		if err := tx.AppendTransaction(ctx, buy); err != nil {
			return err
		}
		shares, err := tx.UpsertHolding(ctx, id, "AAPL", 10)
		assert.Equal(t, int64(10), shares)
		return err
	})
	require.NoError(t, err)

	assertCash(t, store, id, "8500")
	holdings, err := store.ListHoldings(ctx, id)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "AAPL", holdings[0].Symbol)
	assert.Equal(t, int64(10), holdings[0].ShareCount)

	history, err := store.ListTransactions(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, buy.ID, history[0].ID)
	assert.Equal(t, models.MethodBuy, history[0].Method)
	assert.Equal(t, int64(10), history[0].ShareCount)
	assert.True(t, buy.PricePerShare.Equal(history[0].PricePerShare))
	assert.True(t, buy.Timestamp.Equal(history[0].Timestamp))

	err = store.WithinTx(ctx, id, func(tx interfaces.LedgerTx) error {
		holding, err := tx.GetHolding(ctx, id, "AAPL")
		assert.Equal(t, int64(10), holding.ShareCount)
		return err
	})
	require.NoError(t, err)
}

func testRollback(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	id := newAccount(t, store, "1000")

	err := store.WithinTx(ctx, id, func(tx interfaces.LedgerTx) error {
		if _, err := tx.AdjustCash(ctx, id, decimal.NewFromInt(-500)); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, record(id, "MSFT", 1, "500", models.MethodBuy, now())); err != nil {
			return err
		}
		if _, err := tx.UpsertHolding(ctx, id, "MSFT", 1); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	assertCash(t, store, id, "1000")
	holdings, err := store.ListHoldings(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, holdings)
	history, err := store.ListTransactions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func testGuards(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	id := newAccount(t, store, "100")

	err := store.WithinTx(ctx, id, func(tx interfaces.LedgerTx) error {
		_, err := tx.AdjustCash(ctx, id, decimal.RequireFromString("-100.01"))
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNegativeBalance)

	err = store.WithinTx(ctx, id, func(tx interfaces.LedgerTx) error {
		_, err := tx.UpsertHolding(ctx, id, "TSLA", -1)
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNegativeShares)

	err = store.WithinTx(ctx, id, func(tx interfaces.LedgerTx) error {
		return tx.AppendTransaction(ctx, record(id, "TSLA", 0, "10", models.MethodBuy, now()))
	})
	assert.Error(t, err)

	assertCash(t, store, id, "100")
	history, err := store.ListTransactions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func testScope(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	a := newAccount(t, store, "100")
	b := newAccount(t, store, "100")

	err := store.WithinTx(ctx, a, func(tx interfaces.LedgerTx) error {
		_, err := tx.AdjustCash(ctx, b, decimal.NewFromInt(50))
		return err
	})
	assert.ErrorIs(t, err, storage.ErrCrossAccountWrite)

	err = store.WithinTx(ctx, a, func(tx interfaces.LedgerTx) error {
		return tx.AppendTransaction(ctx, record(b, "IBM", 1, "10", models.MethodBuy, now()))
	})
	assert.ErrorIs(t, err, storage.ErrCrossAccountWrite)

	assertCash(t, store, a, "100")
	assertCash(t, store, b, "100")
}

func testZeroHoldings(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	id := newAccount(t, store, "0")

	require.NoError(t, store.WithinTx(ctx, id, func(tx interfaces.LedgerTx) error {
		if _, err := tx.UpsertHolding(ctx, id, "NVDA", 3); err != nil {
			return err
		}
		_, err := tx.UpsertHolding(ctx, id, "AMD", 2)
		return err
	}))
	require.NoError(t, store.WithinTx(ctx, id, func(tx interfaces.LedgerTx) error {
		remaining, err := tx.UpsertHolding(ctx, id, "NVDA", -3)
		assert.Equal(t, int64(0), remaining)
		return err
	}))

	holdings, err := store.ListHoldings(ctx, id)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "AMD", holdings[0].Symbol)

	require.NoError(t, store.WithinTx(ctx, id, func(tx interfaces.LedgerTx) error {
		holding, err := tx.GetHolding(ctx, id, "NVDA")
		assert.Equal(t, int64(0), holding.ShareCount)
		return err
	}))
}

func testHistoryOrder(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	id := newAccount(t, store, "100000")
	base := now()

	var ids []string
	for i, method := range []models.Method{models.MethodBuy, models.MethodBuy, models.MethodSell} {
		// the last two share a timestamp; commit order breaks the tie
		ts := base.Add(time.Duration(min(i, 1)) * time.Second)
		rec := record(id, "GOOG", 1, "100", method, ts)
		ids = append(ids, rec.ID)
		require.NoError(t, store.WithinTx(ctx, id, func(tx interfaces.LedgerTx) error {
			return tx.AppendTransaction(ctx, rec)
		}))
	}

	history, err := store.ListTransactions(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{history[0].ID, history[1].ID, history[2].ID})
	assert.Equal(t, models.MethodSell, history[0].Method)
}
