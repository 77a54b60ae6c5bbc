package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryLedger implements Ledger with an in-memory balance map. Used for
// testing and single-node development; a deployment points the engine at
// the wallet service instead.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]decimal.Decimal)}
}

// Seed sets a user's starting balance, creating the account if needed.
func (l *MemoryLedger) Seed(userID string, balance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = balance
}

func (l *MemoryLedger) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[userID]
	if !ok {
		return decimal.Zero, fmt.Errorf("user %s: %w", userID, ErrUnknownUser)
	}
	return bal, nil
}

func (l *MemoryLedger) Adjust(_ context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[userID]
	if !ok {
		return decimal.Zero, fmt.Errorf("user %s: %w", userID, ErrUnknownUser)
	}

	next := bal.Add(delta)
	if next.IsNegative() {
		return bal, fmt.Errorf("user %s balance %s, delta %s: %w", userID, bal, delta, ErrInsufficientFunds)
	}

	l.balances[userID] = next
	return next, nil
}
