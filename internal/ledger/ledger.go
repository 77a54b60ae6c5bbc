// Package ledger abstracts the user balance ledger. The ledger is the
// single source of truth for money: implementations must guarantee atomic
// per-user adjustment (read-modify-write without lost updates). The engine
// treats it as a black box satisfying that contract.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds is returned when a debit would drive a
	// balance negative.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrUnknownUser is returned when the user has no ledger account.
	ErrUnknownUser = errors.New("ledger: unknown user")
)

// Ledger is the atomic credit/debit primitive keyed by user id.
// Adjust is not assumed idempotent — callers must avoid duplicate calls.
type Ledger interface {
	// Balance returns the user's current balance.
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)

	// Adjust applies a signed delta to the user's balance and returns the
	// new balance. A debit past zero fails with ErrInsufficientFunds and
	// leaves the balance untouched.
	Adjust(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error)
}
