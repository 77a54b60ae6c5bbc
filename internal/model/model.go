// Package model defines the core domain types shared across the live engine.
// All monetary values and odds use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus is the lifecycle state of a market. Transitions are
// monotonic: open → settled or open → void, never reversed.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "open"
	MarketSettled MarketStatus = "settled"
	MarketVoid    MarketStatus = "void"
)

// WagerStatus is the lifecycle state of a wager. A wager starts active and
// transitions exactly once, driven solely by settlement.
type WagerStatus string

const (
	WagerActive WagerStatus = "active"
	WagerWon    WagerStatus = "won"
	WagerLost   WagerStatus = "lost"
	WagerVoided WagerStatus = "void"
)

// Option is one bettable outcome of a market. Keys are unique within a
// market; odds are the current multiplier for that outcome.
type Option struct {
	Key   string          `json:"key"`
	Label string          `json:"label"`
	Odds  decimal.Decimal `json:"odds"`
}

// Market represents one bettable question tied to a live event.
type Market struct {
	ID        string       `json:"id" db:"id"`
	EventID   string       `json:"event_id" db:"event_id"`
	Question  string       `json:"question" db:"question"`
	Options   []Option     `json:"options" db:"options"`
	Status    MarketStatus `json:"status" db:"status"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// Option returns the option with the given key, or nil if the key is not
// part of this market's option set.
func (m *Market) Option(key string) *Option {
	for i := range m.Options {
		if m.Options[i].Key == key {
			return &m.Options[i]
		}
	}
	return nil
}

// Wager is one user's stake on one option of one market. OddsAtPlacement
// and PotentialWin are snapshots taken at placement time; the wager is
// never re-priced when odds move later.
type Wager struct {
	ID              string          `json:"id" db:"id"`
	MarketID        string          `json:"market_id" db:"market_id"`
	EventID         string          `json:"event_id" db:"event_id"`
	UserID          string          `json:"user_id" db:"user_id"`
	Username        string          `json:"username" db:"username"`
	OptionKey       string          `json:"option_key" db:"option_key"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	OddsAtPlacement decimal.Decimal `json:"odds_at_placement" db:"odds_at_placement"`
	PotentialWin    decimal.Decimal `json:"potential_win" db:"potential_win"`
	Status          WagerStatus     `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// OptionTotals aggregates wager pressure on one option within a room.
type OptionTotals struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// BetSummary is the compact wager record shown in a room's recent-activity
// feed. It carries only the display name, not the user id.
type BetSummary struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	OptionKey string          `json:"betType"`
	Amount    decimal.Decimal `json:"amount"`
	Odds      decimal.Decimal `json:"odds"`
	Timestamp time.Time       `json:"timestamp"`
}

// RoomSnapshot is the betting state sent to a participant on join and
// rebroadcast to the whole room after every accepted wager.
type RoomSnapshot struct {
	EventID          string                     `json:"eventId"`
	CurrentOdds      map[string]decimal.Decimal `json:"currentOdds"`
	RecentBets       []BetSummary               `json:"recentBets"`
	TotalBets        map[string]OptionTotals    `json:"totalBets"`
	ParticipantCount int                        `json:"participantCount"`
}
