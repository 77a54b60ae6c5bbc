package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zestbet/live-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	markets map[string]*model.Market
	wagers  map[string]*model.Wager
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[string]*model.Market),
		wagers:  make(map[string]*model.Wager),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.markets[m.ID]; exists {
		return fmt.Errorf("market %s already exists", m.ID)
	}

	// Store a copy to avoid external mutation.
	cp := copyMarket(m)
	s.markets[m.ID] = cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	return copyMarket(m), nil
}

func (s *MemoryStore) ListOpenMarkets(_ context.Context, eventID string) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var markets []model.Market
	for _, m := range s.markets {
		if m.EventID == eventID && m.Status == model.MarketOpen {
			markets = append(markets, *copyMarket(m))
		}
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CreatedAt.Before(markets[j].CreatedAt)
	})
	return markets, nil
}

func (s *MemoryStore) UpdateMarketStatus(_ context.Context, id string, from, to model.MarketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	if m.Status != from {
		return fmt.Errorf("market %s is %s, not %s: %w", id, m.Status, from, ErrConflict)
	}
	m.Status = to
	return nil
}

func (s *MemoryStore) CreateWager(_ context.Context, w *model.Wager) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.wagers[w.ID]; exists {
		return fmt.Errorf("wager %s already exists", w.ID)
	}
	cp := *w
	s.wagers[w.ID] = &cp
	return nil
}

func (s *MemoryStore) ListWagersByMarket(_ context.Context, marketID string) ([]model.Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wagers []model.Wager
	for _, w := range s.wagers {
		if w.MarketID == marketID {
			wagers = append(wagers, *w)
		}
	}
	sort.Slice(wagers, func(i, j int) bool {
		return wagers[i].CreatedAt.Before(wagers[j].CreatedAt)
	})
	return wagers, nil
}

func (s *MemoryStore) UpdateWagerStatus(_ context.Context, id string, to model.WagerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wagers[id]
	if !ok {
		return fmt.Errorf("wager %s: %w", id, ErrNotFound)
	}
	if w.Status != model.WagerActive {
		return fmt.Errorf("wager %s already %s: %w", id, w.Status, ErrConflict)
	}
	w.Status = to
	return nil
}

func copyMarket(m *model.Market) *model.Market {
	cp := *m
	cp.Options = make([]model.Option, len(m.Options))
	copy(cp.Options, m.Options)
	return &cp
}
