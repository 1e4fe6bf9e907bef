package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	interfaces "github.com/sheikh-saqib/stock-trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/models/events"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/quote"
)

const (
	// maxValuationQuotes caps concurrent quote lookups in one valuation.
	maxValuationQuotes = 8

	DefaultPublishTimeout = 2 * time.Second
)

// Ledger is the portfolio engine. It applies buys and sells against the store
// and serializes trades per account.
type Ledger struct {
	store     interfaces.LedgerStore // storage implementation (memory, postgres, pebble)
	quotes    interfaces.QuoteGateway
	publisher interfaces.EventPublisher
	logger    *zap.Logger

	publishTimeout time.Duration
	now       func() time.Time
	newID     func() string

	muMap map[string]*accountState // per-account lock and ordering state
	mapMu sync.Mutex               // protects the muMap itself
}

// accountState serializes trades of one account and keeps its transaction
// timestamps non-decreasing.
type accountState struct {
	mu     sync.Mutex
	loaded bool
	lastTS time.Time
}

type Option func(*Ledger)

// WithPublisher sets where TradeExecuted events go after each commit.
func WithPublisher(p interfaces.EventPublisher) Option {
	return func(l *Ledger) {
		l.publisher = p
	}
}

// WithPublishTimeout bounds each event publish after a commit.
func WithPublishTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.publishTimeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithClock overrides the commit clock.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger is a constructor function that creates a new Ledger instance
// We pass in a storage implementation and the quote gateway prices come from
func NewLedger(store interfaces.LedgerStore, quotes interfaces.QuoteGateway, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		quotes: quotes,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
		muMap:  make(map[string]*accountState),

		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) getAccountState(accountId string) *accountState {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountId]; !exists {
		l.muMap[accountId] = &accountState{}
	}
	return l.muMap[accountId]
}

// OpenAccount registers an account with startingCash. An empty accountId gets a generated one.
func (l *Ledger) OpenAccount(ctx context.Context, accountId string, startingCash decimal.Decimal) (models.Account, error) {
	accountId = strings.TrimSpace(accountId)
	if accountId == "" {
		accountId = l.newID()
	}
	if startingCash.IsNegative() {
		return models.Account{}, invalidInput("starting cash must not be negative, got %s", startingCash)
	}

	account := models.Account{
		ID:          accountId,
		CashBalance: startingCash,
		CreatedAt:   l.now().UTC().Truncate(time.Microsecond),
	}
	if err := l.store.CreateAccount(ctx, account); err != nil {
		return models.Account{}, storeError(err)
	}
	l.logger.Info("account opened", zap.String("account", accountId), zap.String("cash", startingCash.StringFixed(2)))
	return account, nil
}

// Buy purchases shares of symbol at the current quote. Nothing changes unless
// the account can pay for the whole order.
func (l *Ledger) Buy(ctx context.Context, accountId, symbol string, shares int64) (models.BuyResult, error) {
	sym := quote.Normalize(symbol)
	if err := validateTrade(accountId, sym, shares); err != nil {
		return models.BuyResult{}, err
	}
	if _, err := l.store.GetAccount(ctx, accountId); err != nil {
		return models.BuyResult{}, storeError(err)
	}

	q, err := l.quotes.Quote(ctx, sym)
	if err != nil {
		return models.BuyResult{}, l.rejected("buy", accountId, sym, quoteError(sym, err))
	}

	cost := q.Price.Mul(decimal.NewFromInt(shares))
	record, balance, err := l.commit(ctx, accountId, func(ctx context.Context, tx interfaces.LedgerTx, record *models.Transaction) (decimal.Decimal, error) {
		account, err := tx.GetAccount(ctx, accountId)
		if err != nil {
			return decimal.Zero, err
		}
		if account.CashBalance.LessThan(cost) {
			return decimal.Zero, fmt.Errorf("%w: %d x %s costs %s, cash is %s",
				ErrInsufficientFunds, shares, q.Symbol, cost.StringFixed(2), account.CashBalance.StringFixed(2))
		}

		balance, err := tx.AdjustCash(ctx, accountId, cost.Neg())
		if err != nil {
			return decimal.Zero, err
		}
		record.AccountID = accountId
		record.Symbol = q.Symbol
		record.ShareCount = shares
		record.PricePerShare = q.Price
		record.Method = models.MethodBuy
		if err := tx.AppendTransaction(ctx, *record); err != nil {
			return decimal.Zero, err
		}
		if _, err := tx.UpsertHolding(ctx, accountId, q.Symbol, shares); err != nil {
			return decimal.Zero, err
		}
		return balance, nil
	})
	if err != nil {
		return models.BuyResult{}, l.rejected("buy", accountId, sym, err)
	}

	l.executed(ctx, record, balance)
	return models.BuyResult{
		Symbol:    q.Symbol,
		Name:      q.Name,
		Shares:    shares,
		Price:     q.Price,
		TotalCost: cost,
	}, nil
}

// Sell sells shares of symbol at the current quote. The holding is looked up
// under the normalized symbol first. When nothing is owned under it, the
// provider's canonical symbol is tried, since that is the key Buy stores.
func (l *Ledger) Sell(ctx context.Context, accountId, symbol string, shares int64) (models.SellResult, error) {
	sym := quote.Normalize(symbol)
	if err := validateTrade(accountId, sym, shares); err != nil {
		return models.SellResult{}, err
	}

	// cheap precondition before the slow quote; re-checked inside the unit
	owned, err := l.ownedShares(ctx, accountId, sym)
	if err != nil {
		return models.SellResult{}, storeError(err)
	}

	var q models.Quote
	var quoted bool
	if owned == 0 {
		if resolved, err := l.quotes.Quote(ctx, sym); err == nil {
			q, quoted = resolved, true
			if resolved.Symbol != sym {
				sym = resolved.Symbol
				if owned, err = l.ownedShares(ctx, accountId, sym); err != nil {
					return models.SellResult{}, storeError(err)
				}
			}
		}
	}
	if owned < shares {
		return models.SellResult{}, l.rejected("sell", accountId, sym, insufficientShares(sym, owned, shares))
	}

	if !quoted {
		if q, err = l.quotes.Quote(ctx, sym); err != nil {
			// a position is never sold at an unknown price
			return models.SellResult{}, l.rejected("sell", accountId, sym,
				fmt.Errorf("%w: could not get a current price for %q (%v); %s", ErrQuoteUnavailable, sym, err, suffixHint))
		}
	}

	proceeds := q.Price.Mul(decimal.NewFromInt(shares))
	var remaining int64
	record, balance, err := l.commit(ctx, accountId, func(ctx context.Context, tx interfaces.LedgerTx, record *models.Transaction) (decimal.Decimal, error) {
		holding, err := tx.GetHolding(ctx, accountId, sym)
		if err != nil {
			return decimal.Zero, err
		}
		if holding.ShareCount < shares {
			return decimal.Zero, insufficientShares(sym, holding.ShareCount, shares)
		}

		balance, err := tx.AdjustCash(ctx, accountId, proceeds)
		if err != nil {
			return decimal.Zero, err
		}
		record.AccountID = accountId
		record.Symbol = sym
		record.ShareCount = shares
		record.PricePerShare = q.Price
		record.Method = models.MethodSell
		if err := tx.AppendTransaction(ctx, *record); err != nil {
			return decimal.Zero, err
		}
		remaining, err = tx.UpsertHolding(ctx, accountId, sym, -shares)
		if err != nil {
			return decimal.Zero, err
		}
		return balance, nil
	})
	if err != nil {
		return models.SellResult{}, l.rejected("sell", accountId, sym, err)
	}

	l.executed(ctx, record, balance)
	return models.SellResult{
		Symbol:          sym,
		Name:            q.Name,
		Shares:          shares,
		Price:           q.Price,
		Proceeds:        proceeds,
		RemainingShares: remaining,
	}, nil
}

// tradeFunc applies one trade inside a unit of work. record arrives with its
// ID and Timestamp set; the func fills the rest before appending it.
type tradeFunc func(ctx context.Context, tx interfaces.LedgerTx, record *models.Transaction) (decimal.Decimal, error)

// commit runs fn as one store unit while holding the account lock, and stamps
// the appended transaction with the next commit timestamp of the account.
func (l *Ledger) commit(ctx context.Context, accountId string, fn tradeFunc) (models.Transaction, decimal.Decimal, error) {
	state := l.getAccountState(accountId)
	state.mu.Lock()
	defer state.mu.Unlock()

	ts, err := l.nextTimestamp(ctx, state, accountId)
	if err != nil {
		return models.Transaction{}, decimal.Zero, storeError(err)
	}

	record := models.Transaction{ID: l.newID(), Timestamp: ts}
	var balance decimal.Decimal
	err = l.store.WithinTx(ctx, accountId, func(tx interfaces.LedgerTx) error {
		var err error
		balance, err = fn(ctx, tx, &record)
		return err
	})
	if err != nil {
		return models.Transaction{}, decimal.Zero, storeError(err)
	}

	state.lastTS = ts
	return record, balance, nil
}

// nextTimestamp never goes below the newest committed transaction of the
// account. Caller holds state.mu.
func (l *Ledger) nextTimestamp(ctx context.Context, state *accountState, accountId string) (time.Time, error) {
	if !state.loaded {
		history, err := l.store.ListTransactions(ctx, accountId)
		if err != nil {
			return time.Time{}, err
		}
		if len(history) > 0 {
			state.lastTS = history[0].Timestamp
		}
		state.loaded = true
	}

	ts := l.now().UTC().Truncate(time.Microsecond)
	if ts.Before(state.lastTS) {
		ts = state.lastTS
	}
	return ts, nil
}

// ListHoldingsWithValuation prices every owned holding. A failed quote flags
// that row as unavailable and leaves the others untouched.
func (l *Ledger) ListHoldingsWithValuation(ctx context.Context, accountId string) (models.Valuation, error) {
	account, holdings, err := l.snapshot(ctx, accountId)
	if err != nil {
		return models.Valuation{}, storeError(err)
	}

	rows := make([]models.ValuedHolding, len(holdings))
	var g errgroup.Group
	g.SetLimit(maxValuationQuotes)
	for i, h := range holdings {
		i, h := i, h
		g.Go(func() error {
			rows[i] = l.value(ctx, h)
			return nil
		})
	}
	g.Wait()

	valuation := models.Valuation{
		AccountID:     accountId,
		Holdings:      rows,
		Cash:          account.CashBalance,
		HoldingsValue: decimal.Zero,
		Unpriced:      []string{},
	}
	for _, row := range rows {
		if row.PriceUnavailable {
			valuation.Unpriced = append(valuation.Unpriced, row.Symbol)
			continue
		}
		valuation.HoldingsValue = valuation.HoldingsValue.Add(*row.MarketValue)
	}
	valuation.Total = valuation.Cash.Add(valuation.HoldingsValue)
	return valuation, nil
}

// snapshot reads cash and holdings under the account lock, so no trade of this
// engine commits between the two reads. Quotes are fetched after it is released.
func (l *Ledger) snapshot(ctx context.Context, accountId string) (models.Account, []models.Holding, error) {
	state := l.getAccountState(accountId)
	state.mu.Lock()
	defer state.mu.Unlock()

	account, err := l.store.GetAccount(ctx, accountId)
	if err != nil {
		return models.Account{}, nil, err
	}
	holdings, err := l.store.ListHoldings(ctx, accountId)
	if err != nil {
		return models.Account{}, nil, err
	}
	return account, holdings, nil
}

func (l *Ledger) value(ctx context.Context, h models.Holding) models.ValuedHolding {
	row := models.ValuedHolding{Symbol: h.Symbol, Shares: h.ShareCount}

	q, err := l.quotes.Quote(ctx, h.Symbol)
	if err != nil {
		l.logger.Warn("holding could not be priced",
			zap.String("account", h.AccountID), zap.String("symbol", h.Symbol), zap.Error(err))
		row.PriceUnavailable = true
		return row
	}

	marketValue := q.Price.Mul(decimal.NewFromInt(h.ShareCount))
	row.Name = &q.Name
	row.CurrentPrice = &q.Price
	row.MarketValue = &marketValue
	return row
}

// Valuation returns the account's net worth snapshot.
func (l *Ledger) Valuation(ctx context.Context, accountId string) (models.Valuation, error) {
	return l.ListHoldingsWithValuation(ctx, accountId)
}

// ListHistory returns the account's transactions, newest first.
func (l *Ledger) ListHistory(ctx context.Context, accountId string) ([]models.HistoryEntry, error) {
	history, err := l.store.ListTransactions(ctx, accountId)
	if err != nil {
		return nil, storeError(err)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.After(history[j].Timestamp)
	})

	entries := make([]models.HistoryEntry, 0, len(history))
	for _, tx := range history {
		entries = append(entries, models.HistoryEntry{
			Symbol:        tx.Symbol,
			Shares:        tx.SignedShares(),
			Method:        tx.Method,
			PricePerShare: tx.PricePerShare,
			TotalValue:    tx.TotalValue(),
			Timestamp:     tx.Timestamp,
		})
	}
	return entries, nil
}

func (l *Ledger) GetCashBalance(ctx context.Context, accountId string) (decimal.Decimal, error) {
	account, err := l.store.GetAccount(ctx, accountId)
	if err != nil {
		return decimal.Zero, storeError(err)
	}
	return account.CashBalance, nil
}

// Quote looks up a symbol for display.
func (l *Ledger) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	sym := quote.Normalize(symbol)
	if sym == "" {
		return models.Quote{}, invalidInput("must provide symbol")
	}
	q, err := l.quotes.Quote(ctx, sym)
	if err != nil {
		return models.Quote{}, quoteError(sym, err)
	}
	return q, nil
}

func (l *Ledger) ownedShares(ctx context.Context, accountId, symbol string) (int64, error) {
	holdings, err := l.store.ListHoldings(ctx, accountId)
	if err != nil {
		return 0, err
	}
	for _, h := range holdings {
		if h.Symbol == symbol {
			return h.ShareCount, nil
		}
	}
	return 0, nil
}

// executed logs and publishes a committed trade. Publishing is best effort;
// the trade stays committed when it fails.
func (l *Ledger) executed(ctx context.Context, record models.Transaction, balance decimal.Decimal) {
	l.logger.Info("trade committed",
		zap.String("account", record.AccountID),
		zap.String("method", string(record.Method)),
		zap.String("symbol", record.Symbol),
		zap.Int64("shares", record.ShareCount),
		zap.String("price", record.PricePerShare.StringFixed(2)),
		zap.String("cash", balance.StringFixed(2)),
	)
	if l.publisher == nil {
		return
	}

	event := events.TradeExecuted{
		TransactionID: record.ID,
		AccountID:     record.AccountID,
		Symbol:        record.Symbol,
		Method:        string(record.Method),
		Shares:        record.ShareCount,
		PricePerShare: record.PricePerShare,
		CashBalance:   balance,
		OccurredAt:    record.Timestamp,
	}
	// the request may be gone by now; the event still gets a bounded attempt
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.publishTimeout)
	defer cancel()
	if err := l.publisher.Publish(pubCtx, record.AccountID, event); err != nil {
		l.logger.Warn("trade event not published", zap.String("transaction", record.ID), zap.Error(err))
	}
}

func (l *Ledger) rejected(op, accountId, symbol string, err error) error {
	if errors.Is(err, ErrStoreFailure) {
		l.logger.Error("trade failed", zap.String("op", op), zap.String("account", accountId),
			zap.String("symbol", symbol), zap.Error(err))
		return err
	}
	l.logger.Info("trade rejected", zap.String("op", op), zap.String("account", accountId),
		zap.String("symbol", symbol), zap.String("kind", Kind(err)), zap.Error(err))
	return err
}

func validateTrade(accountId, symbol string, shares int64) error {
	switch {
	case strings.TrimSpace(accountId) == "":
		return invalidInput("account id is required")
	case symbol == "":
		return invalidInput("must provide symbol")
	case shares <= 0:
		return invalidInput("must provide a positive number of shares, got %d", shares)
	}
	return nil
}

func insufficientShares(symbol string, owned, requested int64) error {
	return fmt.Errorf("%w: you only own %d shares of %s, cannot sell %d", ErrInsufficientShares, owned, symbol, requested)
}
