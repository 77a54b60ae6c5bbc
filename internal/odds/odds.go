// Package odds implements the pressure-based odds adjuster for live betting
// markets.
//
// The adjuster shortens odds on outcomes attracting a large share of the
// total staked amount and lengthens odds on neglected ones, with a mild
// upward drift on every other option to preserve rough balance. It is a
// heuristic market maker, not a fair-odds computation — it carries no
// guarantee of zero house exposure.
//
// All odds use shopspring/decimal — never float64 for money.
package odds

import (
	"github.com/shopspring/decimal"

	"github.com/zestbet/live-engine/internal/model"
)

var (
	// MinOdds is the lowest allowed odds multiplier. Prevents degenerate
	// markets where a win pays out less than the stake's floor.
	MinOdds = decimal.RequireFromString("1.1")

	// MaxOdds is the highest allowed odds multiplier.
	MaxOdds = decimal.RequireFromString("10.0")

	// popularShare is the market share above which odds shorten.
	popularShare = decimal.RequireFromString("0.4")

	// neglectedShare is the market share below which odds lengthen.
	neglectedShare = decimal.RequireFromString("0.2")

	shortenFactor  = decimal.RequireFromString("0.98")
	lengthenFactor = decimal.RequireFromString("1.02")
	driftFactor    = decimal.RequireFromString("1.01")
)

// Engine recomputes per-option odds from aggregate wager pressure. It is
// an interface so a more rigorous market maker can be substituted without
// touching placement or settlement logic.
type Engine interface {
	// Recompute returns the new odds map after a wager on betKey, given
	// the room's per-option totals and current odds. Implementations must
	// not mutate their inputs.
	Recompute(betKey string, totals map[string]model.OptionTotals, current map[string]decimal.Decimal) map[string]decimal.Decimal
}

// PressureEngine is the stateless heuristic adjuster used in production.
type PressureEngine struct{}

// NewPressureEngine creates the default odds engine.
func NewPressureEngine() *PressureEngine {
	return &PressureEngine{}
}

// Recompute applies the pressure heuristic:
//
//   - share(betKey) > 0.4  → odds(betKey) ×= 0.98, floored at MinOdds
//   - share(betKey) < 0.2  → odds(betKey) ×= 1.02, capped at MaxOdds
//   - every other option   → odds ×= 1.01, capped at MaxOdds
//
// When the total staked amount is zero there is nothing to derive a share
// from and the odds are returned unchanged.
func (e *PressureEngine) Recompute(betKey string, totals map[string]model.OptionTotals, current map[string]decimal.Decimal) map[string]decimal.Decimal {
	next := make(map[string]decimal.Decimal, len(current))
	for k, v := range current {
		next[k] = v
	}

	totalAmount := decimal.Zero
	for _, t := range totals {
		totalAmount = totalAmount.Add(t.Amount)
	}
	if !totalAmount.IsPositive() {
		return next
	}

	share := totals[betKey].Amount.Div(totalAmount)

	if cur, ok := next[betKey]; ok {
		switch {
		case share.GreaterThan(popularShare):
			next[betKey] = clamp(cur.Mul(shortenFactor))
		case share.LessThan(neglectedShare):
			next[betKey] = clamp(cur.Mul(lengthenFactor))
		}
	}

	for key, cur := range next {
		if key == betKey {
			continue
		}
		next[key] = clamp(cur.Mul(driftFactor))
	}

	return next
}

// clamp bounds odds to [MinOdds, MaxOdds].
func clamp(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(MinOdds) {
		return MinOdds
	}
	if d.GreaterThan(MaxOdds) {
		return MaxOdds
	}
	return d
}
