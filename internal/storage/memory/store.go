package memory

import (
	"context" // standard Go package for request-scoped context (timeouts, cancellation)
	"sort"
	"sync" // standard Go package for concurrency primitives like Mutex

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/stock-trading-ledger/internal/interfaces" // interface LedgerStore
	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/storage"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// A single mutex guards all three entities, and WithinTx holds it for the whole
// unit, so a unit is invisible to readers until it commits.
type MemoryLedgerStore struct {
	mu           sync.Mutex                      // protects everything below
	accounts     map[string]models.Account       // account id -> account
	holdings     map[string]map[string]int64     // account id -> symbol -> shares, zero rows deleted
	transactions map[string][]models.Transaction // account id -> history in commit order
}

// NewMemoryLedgerStore creates and returns a new MemoryLedgerStore instance
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts:     make(map[string]models.Account),
		holdings:     make(map[string]map[string]int64),
		transactions: make(map[string][]models.Transaction),
	}
}

func (m *MemoryLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	m.mu.Lock()         // lock the mutex to prevent concurrent writes
	defer m.mu.Unlock() // unlock automatically when function exits (even if error occurs)

	if _, exists := m.accounts[account.ID]; exists {
		return storage.ErrAccountExists
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *MemoryLedgerStore) GetAccount(ctx context.Context, accountId string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, exists := m.accounts[accountId]
	if !exists {
		return models.Account{}, storage.ErrAccountNotFound
	}
	return account, nil
}

func (m *MemoryLedgerStore) ListHoldings(ctx context.Context, accountId string) ([]models.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[accountId]; !exists {
		return nil, storage.ErrAccountNotFound
	}

	result := make([]models.Holding, 0, len(m.holdings[accountId]))
	for symbol, shares := range m.holdings[accountId] {
		if shares > 0 {
			result = append(result, models.Holding{AccountID: accountId, Symbol: symbol, ShareCount: shares})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

// ListTransactions returns a copy of the account history, newest first.
func (m *MemoryLedgerStore) ListTransactions(ctx context.Context, accountId string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[accountId]; !exists {
		return nil, storage.ErrAccountNotFound
	}

	history := m.transactions[accountId]
	result := make([]models.Transaction, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		result = append(result, history[i])
	}
	return result, nil
}

func (m *MemoryLedgerStore) WithinTx(ctx context.Context, accountId string, fn func(tx interfaces.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := m.accounts[accountId]; !exists {
		return storage.ErrAccountNotFound
	}

	tx := &memoryTx{
		store:    m,
		scope:    accountId,
		holdings: make(map[string]int64),
	}
	if err := fn(tx); err != nil {
		return err // staged writes are dropped with tx
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.apply()
	return nil
}

// memoryTx stages writes until the unit commits.
type memoryTx struct {
	store    *MemoryLedgerStore
	scope    string
	account  *models.Account      // staged account, nil until first cash write
	holdings map[string]int64     // staged symbol -> shares
	appended []models.Transaction // staged history
}

func (t *memoryTx) GetAccount(ctx context.Context, accountId string) (models.Account, error) {
	if err := storage.CheckScope(t.scope, accountId); err != nil {
		return models.Account{}, err
	}
	if t.account != nil {
		return *t.account, nil
	}
	account, exists := t.store.accounts[accountId]
	if !exists {
		return models.Account{}, storage.ErrAccountNotFound
	}
	return account, nil
}

func (t *memoryTx) GetHolding(ctx context.Context, accountId, symbol string) (models.Holding, error) {
	if _, err := t.GetAccount(ctx, accountId); err != nil {
		return models.Holding{}, err
	}
	return models.Holding{AccountID: accountId, Symbol: symbol, ShareCount: t.shares(symbol)}, nil
}

func (t *memoryTx) AdjustCash(ctx context.Context, accountId string, delta decimal.Decimal) (decimal.Decimal, error) {
	account, err := t.GetAccount(ctx, accountId)
	if err != nil {
		return decimal.Zero, err
	}
	balance := account.CashBalance.Add(delta)
	if balance.IsNegative() {
		return decimal.Zero, storage.ErrNegativeBalance
	}
	account.CashBalance = balance
	t.account = &account
	return balance, nil
}

func (t *memoryTx) UpsertHolding(ctx context.Context, accountId, symbol string, deltaShares int64) (int64, error) {
	if _, err := t.GetAccount(ctx, accountId); err != nil {
		return 0, err
	}
	shares := t.shares(symbol) + deltaShares
	if shares < 0 {
		return 0, storage.ErrNegativeShares
	}
	t.holdings[symbol] = shares
	return shares, nil
}

func (t *memoryTx) AppendTransaction(ctx context.Context, record models.Transaction) error {
	if _, err := t.GetAccount(ctx, record.AccountID); err != nil {
		return err
	}
	if err := storage.ValidateTransaction(record); err != nil {
		return err
	}
	t.appended = append(t.appended, record)
	return nil
}

func (t *memoryTx) shares(symbol string) int64 {
	if shares, staged := t.holdings[symbol]; staged {
		return shares
	}
	return t.store.holdings[t.scope][symbol]
}

// apply publishes the staged writes. Caller holds store.mu.
func (t *memoryTx) apply() {
	s := t.store
	if t.account != nil {
		s.accounts[t.scope] = *t.account
	}
	if len(t.holdings) > 0 {
		owned, exists := s.holdings[t.scope]
		if !exists {
			owned = make(map[string]int64)
			s.holdings[t.scope] = owned
		}
		for symbol, shares := range t.holdings {
			if shares == 0 {
				delete(owned, symbol)
				continue
			}
			owned[symbol] = shares
		}
	}
	s.transactions[t.scope] = append(s.transactions[t.scope], t.appended...)
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
