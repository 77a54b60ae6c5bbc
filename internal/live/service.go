// Package live implements the wager placement and settlement services and
// their HTTP/WebSocket surfaces. Placement has exactly one code path,
// invoked by both the REST handler and the room socket — running two
// independent placement paths risks double-charging.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zestbet/live-engine/internal/bus"
	"github.com/zestbet/live-engine/internal/ledger"
	"github.com/zestbet/live-engine/internal/metrics"
	"github.com/zestbet/live-engine/internal/model"
	"github.com/zestbet/live-engine/internal/room"
	"github.com/zestbet/live-engine/internal/store"
)

// Default bet limits. Overridable through Config.
var (
	DefaultMinBet = decimal.NewFromInt(1)
	DefaultMaxBet = decimal.NewFromInt(10000)
)

// defaultBalanceTimeout bounds every ledger call; on timeout the wager is
// treated as failed, never left half-placed.
const defaultBalanceTimeout = 3 * time.Second

// Config carries the tunable service parameters.
type Config struct {
	MinBet         decimal.Decimal
	MaxBet         decimal.Decimal
	BalanceTimeout time.Duration
}

// Service executes wager placement and market settlement. Placement and
// settlement on the same market are mutually exclusive via a per-market
// lock; the store's conditional status transition backs that up so a
// wager racing settlement loses the race and is rejected.
type Service struct {
	store  store.Store
	ledger ledger.Ledger
	rooms  *room.Manager
	bus    *bus.Bus

	minBet         decimal.Decimal
	maxBet         decimal.Decimal
	balanceTimeout time.Duration

	locks marketLocks
}

// NewService wires the placement/settlement service.
func NewService(st store.Store, lg ledger.Ledger, rooms *room.Manager, b *bus.Bus, cfg Config) *Service {
	if cfg.MinBet.IsZero() {
		cfg.MinBet = DefaultMinBet
	}
	if cfg.MaxBet.IsZero() {
		cfg.MaxBet = DefaultMaxBet
	}
	if cfg.BalanceTimeout <= 0 {
		cfg.BalanceTimeout = defaultBalanceTimeout
	}
	return &Service{
		store:          st,
		ledger:         lg,
		rooms:          rooms,
		bus:            b,
		minBet:         cfg.MinBet,
		maxBet:         cfg.MaxBet,
		balanceTimeout: cfg.BalanceTimeout,
	}
}

// Rooms exposes the room manager for transport-layer join/leave handling.
func (s *Service) Rooms() *room.Manager {
	return s.rooms
}

// PlaceParams identifies one wager placement attempt.
type PlaceParams struct {
	EventID   string
	MarketID  string
	UserID    string
	Username  string
	OptionKey string
	Amount    decimal.Decimal
}

// Place validates and executes a single wager: market and option checks,
// bet limits, balance check, debit, persist, room update, odds recompute,
// broadcast. Validation failures leave balance, totals, and odds
// untouched. Returns the created wager and the room snapshot after the
// update.
func (s *Service) Place(ctx context.Context, p PlaceParams) (*model.Wager, model.RoomSnapshot, error) {
	start := time.Now()

	unlock := s.locks.lock(p.MarketID)
	defer unlock()

	market, err := s.store.GetMarket(ctx, p.MarketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.RoomSnapshot{}, reject("not_found", ErrMarketNotFound)
		}
		return nil, model.RoomSnapshot{}, fmt.Errorf("load market: %w", err)
	}
	if market.Status != model.MarketOpen {
		return nil, model.RoomSnapshot{}, reject("market_closed", ErrMarketClosed)
	}

	option := market.Option(p.OptionKey)
	if option == nil {
		return nil, model.RoomSnapshot{}, reject("invalid_option", fmt.Errorf("%w: %s", ErrInvalidOption, p.OptionKey))
	}

	if p.Amount.LessThan(s.minBet) || p.Amount.GreaterThan(s.maxBet) {
		return nil, model.RoomSnapshot{}, reject("bet_limit",
			fmt.Errorf("%w: amount must be between %s and %s", ErrBetLimit, s.minBet, s.maxBet))
	}

	// The wager is priced from the room's live odds; the market's opening
	// odds seed the room the first time an option is seen.
	s.rooms.SeedOdds(p.EventID, openingOdds(market))
	oddsNow, ok := s.rooms.OddsFor(p.EventID, p.OptionKey)
	if !ok {
		oddsNow = option.Odds
	}

	balCtx, cancel := context.WithTimeout(ctx, s.balanceTimeout)
	defer cancel()

	balance, err := s.ledger.Balance(balCtx, p.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownUser) {
			return nil, model.RoomSnapshot{}, reject("insufficient_balance", ErrInsufficientBalance)
		}
		return nil, model.RoomSnapshot{}, fmt.Errorf("check balance: %w", err)
	}
	if balance.LessThan(p.Amount) {
		return nil, model.RoomSnapshot{}, reject("insufficient_balance", ErrInsufficientBalance)
	}

	if _, err := s.ledger.Adjust(balCtx, p.UserID, p.Amount.Neg()); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, model.RoomSnapshot{}, reject("insufficient_balance", ErrInsufficientBalance)
		}
		return nil, model.RoomSnapshot{}, fmt.Errorf("debit balance: %w", err)
	}

	wager := &model.Wager{
		ID:              uuid.New().String(),
		MarketID:        p.MarketID,
		EventID:         p.EventID,
		UserID:          p.UserID,
		Username:        p.Username,
		OptionKey:       p.OptionKey,
		Amount:          p.Amount,
		OddsAtPlacement: oddsNow,
		PotentialWin:    p.Amount.Mul(oddsNow).Round(2),
		Status:          model.WagerActive,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.store.CreateWager(ctx, wager); err != nil {
		// Debit and persist form one logical transaction: a failed
		// persist reverses the debit.
		if _, crErr := s.ledger.Adjust(context.WithoutCancel(ctx), p.UserID, p.Amount); crErr != nil {
			slog.Error("compensating credit failed after persist error",
				"user_id", p.UserID, "amount", p.Amount.String(), "err", crErr)
		}
		return nil, model.RoomSnapshot{}, fmt.Errorf("persist wager: %w", err)
	}

	snap := s.rooms.ApplyWager(p.EventID, model.BetSummary{
		ID:        wager.ID,
		Username:  p.Username,
		OptionKey: p.OptionKey,
		Amount:    p.Amount,
		Odds:      oddsNow,
		Timestamp: wager.CreatedAt,
	})

	s.rooms.Broadcast(p.EventID, room.EventBettingData, snap)
	s.bus.Publish(bus.Event{
		Type:     bus.TypeBetPlaced,
		EventID:  p.EventID,
		MarketID: p.MarketID,
		WagerID:  wager.ID,
		UserID:   p.UserID,
		Amount:   p.Amount,
	})

	metrics.WagersTotal.WithLabelValues(p.OptionKey).Inc()
	metrics.WagerLatency.Observe(time.Since(start).Seconds())

	slog.Info("wager placed",
		"wager_id", wager.ID,
		"user_id", p.UserID,
		"market_id", p.MarketID,
		"option", p.OptionKey,
		"amount", p.Amount.String(),
		"odds", oddsNow.String(),
		"potential_win", wager.PotentialWin.String(),
	)

	return wager, snap, nil
}

// Settle closes the market against the winning option: the open→settled
// flip happens before any money moves, so a second call (or a racing
// placement) fails instead of double-processing. Returns the total amount
// credited to winners.
func (s *Service) Settle(ctx context.Context, marketID, winningOptionKey string) (decimal.Decimal, error) {
	return s.close(ctx, marketID, winningOptionKey, model.MarketSettled)
}

// Void cancels the market: every active wager transitions to void and the
// original stake is refunded instead of the potential win.
func (s *Service) Void(ctx context.Context, marketID string) (decimal.Decimal, error) {
	return s.close(ctx, marketID, "", model.MarketVoid)
}

func (s *Service) close(ctx context.Context, marketID, winningOptionKey string, to model.MarketStatus) (decimal.Decimal, error) {
	unlock := s.locks.lock(marketID)
	defer unlock()

	market, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, ErrMarketNotFound
		}
		return decimal.Zero, fmt.Errorf("load market: %w", err)
	}

	if to == model.MarketSettled && market.Option(winningOptionKey) == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidOption, winningOptionKey)
	}

	// Flip status first: this closes the window for new wagers before any
	// payout, and the conditional update rejects a second settlement.
	if err := s.store.UpdateMarketStatus(ctx, marketID, model.MarketOpen, to); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return decimal.Zero, ErrAlreadyClosed
		}
		return decimal.Zero, fmt.Errorf("close market: %w", err)
	}

	wagers, err := s.store.ListWagersByMarket(ctx, marketID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list wagers: %w", err)
	}

	totalPayout := decimal.Zero
	for i := range wagers {
		w := &wagers[i]
		if w.Status != model.WagerActive {
			continue
		}
		payout := s.resolveWager(ctx, w, winningOptionKey, to)
		totalPayout = totalPayout.Add(payout)
	}

	switch to {
	case model.MarketVoid:
		s.bus.Publish(bus.Event{
			Type:     bus.TypeMarketVoided,
			EventID:  market.EventID,
			MarketID: marketID,
			Message:  "Market voided, stakes refunded",
		})
		metrics.SettlementsTotal.WithLabelValues("void").Inc()
	default:
		s.bus.Publish(bus.Event{
			Type:             bus.TypeMarketSettled,
			EventID:          market.EventID,
			MarketID:         marketID,
			WinningOptionKey: winningOptionKey,
			Message:          "Market settled",
		})
		metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	}

	payoutF, _ := totalPayout.Float64()
	metrics.PayoutTotal.Add(payoutF)

	slog.Info("market closed",
		"market_id", marketID,
		"status", string(to),
		"winning_option", winningOptionKey,
		"wagers", len(wagers),
		"total_payout", totalPayout.String(),
	)

	return totalPayout, nil
}

// resolveWager transitions one wager and moves its money. Returns the
// amount credited (zero for losers). Individual failures are logged and
// skipped so one bad row cannot strand every other participant's payout.
func (s *Service) resolveWager(ctx context.Context, w *model.Wager, winningOptionKey string, to model.MarketStatus) decimal.Decimal {
	var status model.WagerStatus
	var credit decimal.Decimal

	switch {
	case to == model.MarketVoid:
		status, credit = model.WagerVoided, w.Amount
	case w.OptionKey == winningOptionKey:
		status, credit = model.WagerWon, w.PotentialWin
	default:
		status, credit = model.WagerLost, decimal.Zero
	}

	// The status transition guards the credit: a wager that is already
	// resolved is never paid again.
	if err := s.store.UpdateWagerStatus(ctx, w.ID, status); err != nil {
		slog.Error("wager status transition failed", "wager_id", w.ID, "to", string(status), "err", err)
		return decimal.Zero
	}

	if credit.IsPositive() {
		if _, err := s.ledger.Adjust(ctx, w.UserID, credit); err != nil {
			slog.Error("payout credit failed", "wager_id", w.ID, "user_id", w.UserID,
				"amount", credit.String(), "err", err)
			return decimal.Zero
		}
	}

	switch status {
	case model.WagerWon:
		s.bus.Publish(bus.Event{
			Type:     bus.TypeBetWin,
			EventID:  w.EventID,
			MarketID: w.MarketID,
			WagerID:  w.ID,
			UserID:   w.UserID,
			Amount:   credit,
			Message:  "Wette gewonnen!",
		})
	case model.WagerLost:
		s.bus.Publish(bus.Event{
			Type:     bus.TypeBetLost,
			EventID:  w.EventID,
			MarketID: w.MarketID,
			WagerID:  w.ID,
			UserID:   w.UserID,
			Message:  "Wette verloren",
		})
	}

	if status == model.WagerWon || status == model.WagerVoided {
		return credit
	}
	return decimal.Zero
}

// CreateMarket validates and persists a new market, seeding the event's
// room with its opening odds.
func (s *Service) CreateMarket(ctx context.Context, eventID, question string, options []model.Option) (*model.Market, error) {
	if eventID == "" || question == "" {
		return nil, fmt.Errorf("event_id and question are required")
	}
	if len(options) < 2 {
		return nil, fmt.Errorf("a market needs at least two options")
	}
	seen := make(map[string]bool, len(options))
	for _, o := range options {
		if o.Key == "" || seen[o.Key] {
			return nil, fmt.Errorf("option keys must be non-empty and unique")
		}
		if !o.Odds.IsPositive() {
			return nil, fmt.Errorf("option %s: odds must be positive", o.Key)
		}
		seen[o.Key] = true
	}

	market := &model.Market{
		ID:        uuid.New().String(),
		EventID:   eventID,
		Question:  question,
		Options:   options,
		Status:    model.MarketOpen,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateMarket(ctx, market); err != nil {
		return nil, fmt.Errorf("persist market: %w", err)
	}

	s.rooms.SeedOdds(eventID, openingOdds(market))

	slog.Info("market created", "market_id", market.ID, "event_id", eventID, "options", len(options))
	return market, nil
}

// ListMarkets returns the open markets for an event. An event without any
// market gets a default one seeded on first read so a room is never
// presented without something to bet on.
func (s *Service) ListMarkets(ctx context.Context, eventID string) ([]model.Market, error) {
	markets, err := s.store.ListOpenMarkets(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	if len(markets) > 0 {
		return markets, nil
	}

	seeded, err := s.CreateMarket(ctx, eventID, "Wer gewinnt die nächste Runde?", []model.Option{
		{Key: "home", Label: "Home", Odds: decimal.RequireFromString("2.1")},
		{Key: "draw", Label: "Unentschieden", Odds: decimal.RequireFromString("3.2")},
		{Key: "away", Label: "Away", Odds: decimal.RequireFromString("2.8")},
	})
	if err != nil {
		return nil, err
	}
	return []model.Market{*seeded}, nil
}

// RunEventForwarder consumes the bus and pushes settlement outcomes to the
// affected rooms until the context is cancelled. Heartbeats stay off the
// room channel — socket liveness is handled by ping/pong.
func (s *Service) RunEventForwarder(ctx context.Context) {
	ch, cancel := s.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			switch evt.Type {
			case bus.TypeBetWin, bus.TypeBetLost, bus.TypeMarketSettled, bus.TypeMarketVoided:
				s.rooms.Broadcast(evt.EventID, evt.Type, evt)
			}
		}
	}
}

// openingOdds extracts the option→odds map from a market.
func openingOdds(m *model.Market) map[string]decimal.Decimal {
	odds := make(map[string]decimal.Decimal, len(m.Options))
	for _, o := range m.Options {
		odds[o.Key] = o.Odds
	}
	return odds
}

// reject counts a validation failure and returns its typed error.
func reject(reason string, err error) error {
	metrics.WagerRejections.WithLabelValues(reason).Inc()
	return err
}

// marketLocks hands out one mutex per market id so settlement and
// placement on the same market serialize without stalling other markets.
type marketLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *marketLocks) lock(marketID string) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	mu, ok := l.m[marketID]
	if !ok {
		mu = &sync.Mutex{}
		l.m[marketID] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}
