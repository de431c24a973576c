// Package bank holds player wallets. The ledger collects claim payments
// from a wallet and pays withdrawn winnings back into it.
package bank

import (
	"errors"
	"math"

	"kingpot/internal/db"
)

var (
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrUnknownAccount    = errors.New("unknown wallet")
	ErrInvalidAmount     = errors.New("amount must be > 0")
	ErrTxConflict        = db.ErrTxConflict
)

func addBalance(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, errors.New("wallet balance overflow")
	}
	return a + b, nil
}
