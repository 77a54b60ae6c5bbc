package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zestbet/live-engine/internal/model"
	"github.com/zestbet/live-engine/internal/store"
)

func openMarket(id, eventID string) *model.Market {
	return &model.Market{
		ID:       id,
		EventID:  eventID,
		Question: "Who wins the next round?",
		Options: []model.Option{
			{Key: "home", Label: "Home", Odds: decimal.NewFromFloat(2.1)},
			{Key: "away", Label: "Away", Odds: decimal.NewFromFloat(2.8)},
		},
		Status:    model.MarketOpen,
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemoryStore_MarketStatusTransitionIsMonotonic(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := ms.CreateMarket(ctx, openMarket("m1", "e1")); err != nil {
		t.Fatalf("create market: %v", err)
	}

	if err := ms.UpdateMarketStatus(ctx, "m1", model.MarketOpen, model.MarketSettled); err != nil {
		t.Fatalf("first transition failed: %v", err)
	}

	// Second transition out of open must be rejected.
	err := ms.UpdateMarketStatus(ctx, "m1", model.MarketOpen, model.MarketVoid)
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	m, err := ms.GetMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if m.Status != model.MarketSettled {
		t.Errorf("status = %s, want settled", m.Status)
	}
}

func TestMemoryStore_UpdateMarketStatus_NotFound(t *testing.T) {
	ms := store.NewMemoryStore()

	err := ms.UpdateMarketStatus(context.Background(), "missing", model.MarketOpen, model.MarketSettled)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_WagerResolvesExactlyOnce(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	w := &model.Wager{
		ID:        "w1",
		MarketID:  "m1",
		EventID:   "e1",
		UserID:    "u1",
		OptionKey: "home",
		Amount:    decimal.NewFromInt(50),
		Status:    model.WagerActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateWager(ctx, w); err != nil {
		t.Fatalf("create wager: %v", err)
	}

	if err := ms.UpdateWagerStatus(ctx, "w1", model.WagerWon); err != nil {
		t.Fatalf("resolve wager: %v", err)
	}

	err := ms.UpdateWagerStatus(ctx, "w1", model.WagerLost)
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict on second resolution, got %v", err)
	}
}

func TestMemoryStore_ListOpenMarkets_FiltersSettled(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	first := openMarket("m1", "e1")
	first.CreatedAt = time.Now().UTC().Add(-time.Minute)
	if err := ms.CreateMarket(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := ms.CreateMarket(ctx, openMarket("m2", "e1")); err != nil {
		t.Fatal(err)
	}
	if err := ms.CreateMarket(ctx, openMarket("m3", "other-event")); err != nil {
		t.Fatal(err)
	}
	if err := ms.UpdateMarketStatus(ctx, "m1", model.MarketOpen, model.MarketSettled); err != nil {
		t.Fatal(err)
	}

	markets, err := ms.ListOpenMarkets(ctx, "e1")
	if err != nil {
		t.Fatalf("list open markets: %v", err)
	}
	if len(markets) != 1 || markets[0].ID != "m2" {
		t.Errorf("expected only m2 open for e1, got %+v", markets)
	}
}

func TestMemoryStore_GetMarketReturnsCopy(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := ms.CreateMarket(ctx, openMarket("m1", "e1")); err != nil {
		t.Fatal(err)
	}

	m, _ := ms.GetMarket(ctx, "m1")
	m.Options[0].Odds = decimal.NewFromInt(99)
	m.Status = model.MarketVoid

	again, _ := ms.GetMarket(ctx, "m1")
	if !again.Options[0].Odds.Equal(decimal.NewFromFloat(2.1)) {
		t.Errorf("store mutated through returned copy: odds = %s", again.Options[0].Odds)
	}
	if again.Status != model.MarketOpen {
		t.Errorf("store mutated through returned copy: status = %s", again.Status)
	}
}
