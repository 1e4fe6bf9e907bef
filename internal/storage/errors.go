// Package storage holds what the Ledger Store drivers share.
package storage

import (
	"errors"
	"fmt"

	"github.com/sheikh-saqib/stock-trading-ledger/internal/models"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrCrossAccountWrite = errors.New("write outside the account of this unit")
	ErrNegativeBalance   = errors.New("cash balance would go negative")
	ErrNegativeShares    = errors.New("share count would go negative")
)

// CheckScope rejects access to a different account than the one a unit was opened for.
func CheckScope(scope, accountId string) error {
	if scope != accountId {
		return fmt.Errorf("%w: unit for %q, got %q", ErrCrossAccountWrite, scope, accountId)
	}
	return nil
}

// ValidateTransaction checks a record before it is appended.
func ValidateTransaction(record models.Transaction) error {
	switch {
	case record.ID == "":
		return errors.New("transaction id is required")
	case record.Symbol == "":
		return errors.New("transaction symbol is required")
	case record.ShareCount <= 0:
		return fmt.Errorf("transaction share count must be positive, got %d", record.ShareCount)
	case !record.PricePerShare.IsPositive():
		return fmt.Errorf("transaction price must be positive, got %s", record.PricePerShare)
	case !record.Method.Valid():
		return fmt.Errorf("unknown transaction method %q", record.Method)
	case record.Timestamp.IsZero():
		return errors.New("transaction timestamp is required")
	}
	return nil
}
