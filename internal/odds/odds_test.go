package odds_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/zestbet/live-engine/internal/model"
	"github.com/zestbet/live-engine/internal/odds"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func totals(amounts map[string]float64) map[string]model.OptionTotals {
	out := make(map[string]model.OptionTotals, len(amounts))
	for k, v := range amounts {
		out[k] = model.OptionTotals{Count: 1, Amount: d(v)}
	}
	return out
}

func startingOdds() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"home": d(2.1),
		"draw": d(3.2),
		"away": d(2.8),
	}
}

func TestRecompute_ZeroTotalLeavesOddsUnchanged(t *testing.T) {
	e := odds.NewPressureEngine()

	next := e.Recompute("home", totals(map[string]float64{}), startingOdds())

	for key, want := range startingOdds() {
		if !next[key].Equal(want) {
			t.Errorf("odds[%s] = %s, want unchanged %s", key, next[key], want)
		}
	}
}

func TestRecompute_PopularOptionShortens(t *testing.T) {
	e := odds.NewPressureEngine()

	// home carries 100% of the pool → share > 0.4.
	next := e.Recompute("home", totals(map[string]float64{"home": 50}), startingOdds())

	want := d(2.1).Mul(d(0.98))
	if !next["home"].Equal(want) {
		t.Errorf("home odds = %s, want %s", next["home"], want)
	}
	// Other options drift up by 1%.
	if !next["draw"].Equal(d(3.2).Mul(d(1.01))) {
		t.Errorf("draw odds = %s, want %s", next["draw"], d(3.2).Mul(d(1.01)))
	}
	if !next["away"].Equal(d(2.8).Mul(d(1.01))) {
		t.Errorf("away odds = %s, want %s", next["away"], d(2.8).Mul(d(1.01)))
	}
}

func TestRecompute_NeglectedOptionLengthens(t *testing.T) {
	e := odds.NewPressureEngine()

	// draw has 10% of the pool → share < 0.2.
	next := e.Recompute("draw", totals(map[string]float64{
		"home": 60,
		"draw": 10,
		"away": 30,
	}), startingOdds())

	want := d(3.2).Mul(d(1.02))
	if !next["draw"].Equal(want) {
		t.Errorf("draw odds = %s, want %s", next["draw"], want)
	}
}

func TestRecompute_MiddleShareUnchanged(t *testing.T) {
	e := odds.NewPressureEngine()

	// home has 30% of the pool → between 0.2 and 0.4: no adjustment.
	next := e.Recompute("home", totals(map[string]float64{
		"home": 30,
		"draw": 40,
		"away": 30,
	}), startingOdds())

	if !next["home"].Equal(d(2.1)) {
		t.Errorf("home odds = %s, want unchanged 2.1", next["home"])
	}
	// Others still drift.
	if !next["draw"].Equal(d(3.2).Mul(d(1.01))) {
		t.Errorf("draw odds = %s, want drifted", next["draw"])
	}
}

func TestRecompute_DoesNotMutateInputs(t *testing.T) {
	e := odds.NewPressureEngine()
	current := startingOdds()

	e.Recompute("home", totals(map[string]float64{"home": 50}), current)

	if !current["home"].Equal(d(2.1)) {
		t.Errorf("input odds mutated: home = %s", current["home"])
	}
}

func TestRecompute_OddsStayWithinBounds(t *testing.T) {
	e := odds.NewPressureEngine()

	cur := startingOdds()
	tot := totals(map[string]float64{"home": 1, "draw": 1, "away": 1})

	// Hammer one option for many rounds: its odds must floor at 1.1 and
	// every other option must cap at 10.0.
	for i := 0; i < 500; i++ {
		h := tot["home"]
		h.Count++
		h.Amount = h.Amount.Add(d(100))
		tot["home"] = h
		cur = e.Recompute("home", tot, cur)

		for key, v := range cur {
			if v.LessThan(odds.MinOdds) || v.GreaterThan(odds.MaxOdds) {
				t.Fatalf("round %d: odds[%s] = %s outside [1.1, 10.0]", i, key, v)
			}
		}
	}

	if !cur["home"].Equal(odds.MinOdds) {
		t.Errorf("home odds = %s, want floored at %s", cur["home"], odds.MinOdds)
	}
	if !cur["draw"].Equal(odds.MaxOdds) {
		t.Errorf("draw odds = %s, want capped at %s", cur["draw"], odds.MaxOdds)
	}
}
