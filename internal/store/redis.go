package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zestbet/live-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for markets. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary.
//
// Wagers are not cached: settlement is the only bulk reader and must see
// the authoritative rows.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	s.rdb.Del(ctx, openMarketsKey(m.EventID))
	return nil
}

func (s *CachedStore) UpdateMarketStatus(ctx context.Context, id string, from, to model.MarketStatus) error {
	if err := s.primary.UpdateMarketStatus(ctx, id, from, to); err != nil {
		return err
	}
	// Invalidate; next read re-populates. The open-markets list for the
	// event is dropped too since a settled market must leave it.
	if m, err := s.primary.GetMarket(ctx, id); err == nil {
		s.rdb.Del(ctx, openMarketsKey(m.EventID))
	}
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) ListOpenMarkets(ctx context.Context, eventID string) ([]model.Market, error) {
	data, err := s.rdb.Get(ctx, openMarketsKey(eventID)).Bytes()
	if err == nil {
		var markets []model.Market
		if json.Unmarshal(data, &markets) == nil {
			return markets, nil
		}
	}

	markets, err := s.primary.ListOpenMarkets(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(markets); err == nil {
		s.rdb.Set(ctx, openMarketsKey(eventID), data, s.ttl)
	}
	return markets, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateWager(ctx context.Context, w *model.Wager) error {
	return s.primary.CreateWager(ctx, w)
}

func (s *CachedStore) ListWagersByMarket(ctx context.Context, marketID string) ([]model.Wager, error) {
	return s.primary.ListWagersByMarket(ctx, marketID)
}

func (s *CachedStore) UpdateWagerStatus(ctx context.Context, id string, to model.WagerStatus) error {
	return s.primary.UpdateWagerStatus(ctx, id, to)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func marketKey(id string) string           { return fmt.Sprintf("market:%s", id) }
func openMarketsKey(eventID string) string { return fmt.Sprintf("markets:open:%s", eventID) }
