package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/stock-trading-ledger/internal/interfaces" // interface LedgerStore
	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/storage"
)

//go:embed schema.sql
var schema string

// unique_violation, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const uniqueViolation = "23505"

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the ledger tables when they do not exist.
func (p *PostgresLedgerStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *PostgresLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	const query = `INSERT INTO accounts (id, cash_balance, created_at) VALUES ($1, $2, $3)`

	_, err := p.db.ExecContext(ctx, query, account.ID, account.CashBalance, account.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return storage.ErrAccountExists
	}
	return err
}

func (p *PostgresLedgerStore) GetAccount(ctx context.Context, accountId string) (models.Account, error) {
	return getAccount(ctx, p.db, accountId, false)
}

func (p *PostgresLedgerStore) ListHoldings(ctx context.Context, accountId string) ([]models.Holding, error) {
	if _, err := p.GetAccount(ctx, accountId); err != nil {
		return nil, err
	}

	const query = `SELECT account_id, symbol, share_count FROM holdings
	WHERE account_id = $1 AND share_count > 0 ORDER BY symbol`

	rows, err := p.db.QueryContext(ctx, query, accountId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	holdings := make([]models.Holding, 0)
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.AccountID, &h.Symbol, &h.ShareCount); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (p *PostgresLedgerStore) ListTransactions(ctx context.Context, accountId string) ([]models.Transaction, error) {
	if _, err := p.GetAccount(ctx, accountId); err != nil {
		return nil, err
	}

	const query = `SELECT id, account_id, symbol, share_count, price_per_share, method, transacted_at
	FROM transactions WHERE account_id = $1 ORDER BY transacted_at DESC, seq DESC`

	rows, err := p.db.QueryContext(ctx, query, accountId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]models.Transaction, 0)
	for rows.Next() {
		var tx models.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.AccountID,
			&tx.Symbol,
			&tx.ShareCount,
			&tx.PricePerShare,
			&tx.Method,
			&tx.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

// WithinTx opens a database transaction and locks the account row for its
// duration, so units for the same account serialize in the database as well.
func (p *PostgresLedgerStore) WithinTx(ctx context.Context, accountId string, fn func(tx interfaces.LedgerTx) error) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if _, err = getAccount(ctx, dbTx, accountId, true); err != nil {
		return err
	}

	if err = fn(&postgresTx{dbTx: dbTx, scope: accountId}); err != nil {
		return err
	}
	return dbTx.Commit()
}

type postgresTx struct {
	dbTx  *sql.Tx
	scope string
}

func (t *postgresTx) GetAccount(ctx context.Context, accountId string) (models.Account, error) {
	if err := storage.CheckScope(t.scope, accountId); err != nil {
		return models.Account{}, err
	}
	return getAccount(ctx, t.dbTx, accountId, false)
}

func (t *postgresTx) GetHolding(ctx context.Context, accountId, symbol string) (models.Holding, error) {
	if err := storage.CheckScope(t.scope, accountId); err != nil {
		return models.Holding{}, err
	}

	const query = `SELECT share_count FROM holdings WHERE account_id = $1 AND symbol = $2`

	holding := models.Holding{AccountID: accountId, Symbol: symbol}
	err := t.dbTx.QueryRowContext(ctx, query, accountId, symbol).Scan(&holding.ShareCount)
	if err != nil && err != sql.ErrNoRows {
		return models.Holding{}, err
	}
	return holding, nil
}

func (t *postgresTx) AdjustCash(ctx context.Context, accountId string, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := storage.CheckScope(t.scope, accountId); err != nil {
		return decimal.Zero, err
	}

	// The guard in WHERE leaves the row untouched instead of tripping the CHECK
	// constraint, which would abort the whole transaction.
	const query = `UPDATE accounts SET cash_balance = cash_balance + $2
	WHERE id = $1 AND cash_balance + $2 >= 0 RETURNING cash_balance`

	var balance decimal.Decimal
	err := t.dbTx.QueryRowContext(ctx, query, accountId, delta).Scan(&balance)
	if err == sql.ErrNoRows {
		if _, err := getAccount(ctx, t.dbTx, accountId, false); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, storage.ErrNegativeBalance
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// UpsertHolding keeps zero-share rows; ListHoldings filters them out.
func (t *postgresTx) UpsertHolding(ctx context.Context, accountId, symbol string, deltaShares int64) (int64, error) {
	if err := storage.CheckScope(t.scope, accountId); err != nil {
		return 0, err
	}

	current, err := t.GetHolding(ctx, accountId, symbol)
	if err != nil {
		return 0, err
	}
	if current.ShareCount+deltaShares < 0 {
		return 0, storage.ErrNegativeShares
	}

	const query = `INSERT INTO holdings (account_id, symbol, share_count) VALUES ($1, $2, $3)
	ON CONFLICT (account_id, symbol)
	DO UPDATE SET share_count = holdings.share_count + EXCLUDED.share_count, updated_at = now()
	RETURNING share_count`

	var shares int64
	if err := t.dbTx.QueryRowContext(ctx, query, accountId, symbol, deltaShares).Scan(&shares); err != nil {
		return 0, err
	}
	return shares, nil
}

func (t *postgresTx) AppendTransaction(ctx context.Context, record models.Transaction) error {
	if err := storage.CheckScope(t.scope, record.AccountID); err != nil {
		return err
	}
	if err := storage.ValidateTransaction(record); err != nil {
		return err
	}

	const query = `INSERT INTO transactions (id, account_id, symbol, share_count, price_per_share, method, transacted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.dbTx.ExecContext(ctx, query,
		record.ID, record.AccountID, record.Symbol, record.ShareCount,
		record.PricePerShare, string(record.Method), record.Timestamp)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAccount(ctx context.Context, q queryer, accountId string, forUpdate bool) (models.Account, error) {
	query := `SELECT id, cash_balance, created_at FROM accounts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var account models.Account
	err := q.QueryRowContext(ctx, query, accountId).Scan(&account.ID, &account.CashBalance, &account.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Account{}, storage.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	return account, nil
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
