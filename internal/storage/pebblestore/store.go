// Package pebblestore is an embedded Ledger Store on top of Pebble. Each unit
// of work is an indexed batch, committed atomically with pebble.Sync.
package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/stock-trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/storage"
)

type PebbleLedgerStore struct {
	db    *pebble.DB
	muMap map[string]*sync.Mutex // one writer per account
	mapMu sync.Mutex             // protects the muMap itself
}

// Open opens (or creates) a Pebble database in dir.
func Open(dir string) (*PebbleLedgerStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dir, err)
	}
	return &PebbleLedgerStore{
		db:    db,
		muMap: make(map[string]*sync.Mutex),
	}, nil
}

func (s *PebbleLedgerStore) Close() error { return s.db.Close() }

func (s *PebbleLedgerStore) accountLock(accountId string) *sync.Mutex {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	if _, exists := s.muMap[accountId]; !exists {
		s.muMap[accountId] = &sync.Mutex{}
	}
	return s.muMap[accountId]
}

func (s *PebbleLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	lock := s.accountLock(account.ID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := getAccount(s.db, account.ID); err == nil {
		return storage.ErrAccountExists
	} else if !errors.Is(err, storage.ErrAccountNotFound) {
		return err
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	if err := s.db.Set(accountKey(account.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *PebbleLedgerStore) GetAccount(ctx context.Context, accountId string) (models.Account, error) {
	return getAccount(s.db, accountId)
}

func (s *PebbleLedgerStore) ListHoldings(ctx context.Context, accountId string) ([]models.Holding, error) {
	if _, err := getAccount(s.db, accountId); err != nil {
		return nil, err
	}

	prefix := holdingPrefix(accountId)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	// keys sort by symbol within the prefix
	holdings := make([]models.Holding, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		var h models.Holding
		if err := json.Unmarshal(iter.Value(), &h); err != nil {
			return nil, fmt.Errorf("failed to unmarshal holding %s: %w", iter.Key(), err)
		}
		if h.Owned() {
			holdings = append(holdings, h)
		}
	}
	return holdings, iter.Error()
}

// ListTransactions walks the account's history backwards, newest first.
func (s *PebbleLedgerStore) ListTransactions(ctx context.Context, accountId string) ([]models.Transaction, error) {
	if _, err := getAccount(s.db, accountId); err != nil {
		return nil, err
	}

	prefix := transactionPrefix(accountId)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	transactions := make([]models.Transaction, 0)
	for iter.Last(); iter.Valid(); iter.Prev() {
		var tx models.Transaction
		if err := json.Unmarshal(iter.Value(), &tx); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction %s: %w", iter.Key(), err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, iter.Error()
}

func (s *PebbleLedgerStore) WithinTx(ctx context.Context, accountId string, fn func(tx interfaces.LedgerTx) error) error {
	lock := s.accountLock(accountId)
	lock.Lock()
	defer lock.Unlock()

	batch := s.db.NewIndexedBatch()
	defer batch.Close()

	if _, err := getAccount(batch, accountId); err != nil {
		return err
	}
	if err := fn(&pebbleTx{batch: batch, scope: accountId}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

type pebbleTx struct {
	batch *pebble.Batch
	scope string
}

func (t *pebbleTx) GetAccount(ctx context.Context, accountId string) (models.Account, error) {
	if err := storage.CheckScope(t.scope, accountId); err != nil {
		return models.Account{}, err
	}
	return getAccount(t.batch, accountId)
}

func (t *pebbleTx) GetHolding(ctx context.Context, accountId, symbol string) (models.Holding, error) {
	if err := storage.CheckScope(t.scope, accountId); err != nil {
		return models.Holding{}, err
	}

	holding := models.Holding{AccountID: accountId, Symbol: symbol}
	if _, err := getJSON(t.batch, holdingKey(accountId, symbol), &holding); err != nil {
		return models.Holding{}, err
	}
	return holding, nil
}

func (t *pebbleTx) AdjustCash(ctx context.Context, accountId string, delta decimal.Decimal) (decimal.Decimal, error) {
	account, err := t.GetAccount(ctx, accountId)
	if err != nil {
		return decimal.Zero, err
	}
	balance := account.CashBalance.Add(delta)
	if balance.IsNegative() {
		return decimal.Zero, storage.ErrNegativeBalance
	}
	account.CashBalance = balance
	if err := setJSON(t.batch, accountKey(accountId), account); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// UpsertHolding deletes the row once it reaches zero.
func (t *pebbleTx) UpsertHolding(ctx context.Context, accountId, symbol string, deltaShares int64) (int64, error) {
	holding, err := t.GetHolding(ctx, accountId, symbol)
	if err != nil {
		return 0, err
	}
	shares := holding.ShareCount + deltaShares
	if shares < 0 {
		return 0, storage.ErrNegativeShares
	}

	key := holdingKey(accountId, symbol)
	if shares == 0 {
		return 0, t.batch.Delete(key, nil)
	}
	holding.ShareCount = shares
	if err := setJSON(t.batch, key, holding); err != nil {
		return 0, err
	}
	return shares, nil
}

func (t *pebbleTx) AppendTransaction(ctx context.Context, record models.Transaction) error {
	if err := storage.CheckScope(t.scope, record.AccountID); err != nil {
		return err
	}
	if err := storage.ValidateTransaction(record); err != nil {
		return err
	}

	seq, err := t.nextSequence(record.AccountID)
	if err != nil {
		return err
	}
	return setJSON(t.batch, transactionKey(record.AccountID, seq), record)
}

func (t *pebbleTx) nextSequence(accountId string) (uint64, error) {
	key := sequenceKey(accountId)

	var seq uint64
	value, closer, err := t.batch.Get(key)
	switch {
	case err == nil:
		seq, err = strconv.ParseUint(string(value), 10, 64)
		closer.Close()
		if err != nil {
			return 0, fmt.Errorf("corrupt sequence for %s: %w", accountId, err)
		}
	case errors.Is(err, pebble.ErrNotFound):
	default:
		return 0, err
	}

	seq++
	if err := t.batch.Set(key, []byte(strconv.FormatUint(seq, 10)), nil); err != nil {
		return 0, err
	}
	return seq, nil
}

// reader is satisfied by both *pebble.DB and an indexed *pebble.Batch.
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func getAccount(r reader, accountId string) (models.Account, error) {
	var account models.Account
	found, err := getJSON(r, accountKey(accountId), &account)
	if err != nil {
		return models.Account{}, err
	}
	if !found {
		return models.Account{}, storage.ErrAccountNotFound
	}
	return account, nil
}

func getJSON(r reader, key []byte, v any) (bool, error) {
	data, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func setJSON(batch *pebble.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return batch.Set(key, data, nil)
}

var _ interfaces.LedgerStore = (*PebbleLedgerStore)(nil)
