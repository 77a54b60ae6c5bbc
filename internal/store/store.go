// Package store defines the persistence interface for the live engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-node development).
package store

import (
	"context"
	"errors"

	"github.com/zestbet/live-engine/internal/model"
)

var (
	// ErrNotFound is returned when a market or wager does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a status transition is rejected because
	// the entity is no longer in the expected prior state. Market and wager
	// statuses move exactly once; the store is the last line of defense
	// against double settlement.
	ErrConflict = errors.New("store: conflicting status transition")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Market operations ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListOpenMarkets returns the open markets for a live event.
	ListOpenMarkets(ctx context.Context, eventID string) ([]model.Market, error)

	// UpdateMarketStatus transitions a market from `from` to `to`.
	// Returns ErrConflict when the market is not currently in `from`;
	// this conditional update is what makes settlement idempotent.
	UpdateMarketStatus(ctx context.Context, id string, from, to model.MarketStatus) error

	// --- Wager operations ---

	// CreateWager persists a new wager. Wagers are never deleted.
	CreateWager(ctx context.Context, wager *model.Wager) error

	// ListWagersByMarket returns all wagers placed against a market.
	ListWagersByMarket(ctx context.Context, marketID string) ([]model.Wager, error)

	// UpdateWagerStatus transitions a wager out of the active state.
	// Returns ErrConflict when the wager has already been resolved.
	UpdateWagerStatus(ctx context.Context, id string, to model.WagerStatus) error
}
