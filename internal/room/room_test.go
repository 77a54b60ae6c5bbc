package room

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/zestbet/live-engine/internal/metrics"
	"github.com/zestbet/live-engine/internal/model"
	"github.com/zestbet/live-engine/internal/odds"
)

// recorder collects events for assertions. Safe for concurrent sends.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Type    string
	Payload any
}

func (r *recorder) Send(eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Payload: payload})
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedOdds() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"home": dec("2.1"),
		"draw": dec("3.2"),
		"away": dec("2.8"),
	}
}

func TestJoinNotifiesOthersAndReturnsSnapshot(t *testing.T) {
	m := NewManager(odds.NewPressureEngine())
	m.SeedOdds("event-1", seedOdds())

	first := &recorder{}
	m.Join("event-1", "u1", "alice", "conn-1", first)

	second := &recorder{}
	snap := m.Join("event-1", "u2", "bob", "conn-2", second)

	if snap.ParticipantCount != 2 {
		t.Errorf("participant count = %d, want 2", snap.ParticipantCount)
	}
	if !snap.CurrentOdds["home"].Equal(dec("2.1")) {
		t.Errorf("home odds = %s, want seeded 2.1", snap.CurrentOdds["home"])
	}
	if got := first.count(EventParticipantJoined); got != 1 {
		t.Errorf("first participant saw %d joined events, want 1", got)
	}
	// The joiner is not notified about itself.
	if got := second.count(EventParticipantJoined); got != 0 {
		t.Errorf("joiner saw %d joined events about itself, want 0", got)
	}
}

func TestRejoinMovesConnectionBetweenRooms(t *testing.T) {
	m := NewManager(odds.NewPressureEngine())

	s := &recorder{}
	m.Join("event-1", "u1", "alice", "conn-1", s)
	snap := m.Join("event-2", "u1", "alice", "conn-1", s)

	if snap.EventID != "event-2" || snap.ParticipantCount != 1 {
		t.Errorf("snapshot = %+v, want sole participant of event-2", snap)
	}
	if old, ok := m.Snapshot("event-1"); !ok || old.ParticipantCount != 0 {
		t.Errorf("event-1 participants = %+v, want empty after move", old)
	}
}

func TestRejoinSameRoomReplacesEntry(t *testing.T) {
	m := NewManager(odds.NewPressureEngine())

	s := &recorder{}
	m.Join("event-1", "u1", "alice", "conn-1", s)
	snap := m.Join("event-1", "u1", "alice", "conn-1", s)

	if snap.ParticipantCount != 1 {
		t.Errorf("participant count after rejoin = %d, want 1", snap.ParticipantCount)
	}
}

func TestLeaveUnknownConnIsNoOp(t *testing.T) {
	m := NewManager(odds.NewPressureEngine())
	m.Join("event-1", "u1", "alice", "conn-1", &recorder{})

	m.Leave("never-joined")

	if snap, _ := m.Snapshot("event-1"); snap.ParticipantCount != 1 {
		t.Errorf("participant count = %d, want 1", snap.ParticipantCount)
	}
}

func TestLeaveNotifiesRemaining(t *testing.T) {
	m := NewManager(odds.NewPressureEngine())
	stay := &recorder{}
	m.Join("event-1", "u1", "alice", "conn-1", stay)
	m.Join("event-1", "u2", "bob", "conn-2", &recorder{})

	m.Leave("conn-2")

	if got := stay.count(EventParticipantLeft); got != 1 {
		t.Errorf("remaining participant saw %d left events, want 1", got)
	}
	if snap, _ := m.Snapshot("event-1"); snap.ParticipantCount != 1 {
		t.Errorf("participant count = %d, want 1", snap.ParticipantCount)
	}
}

func TestApplyWagerUpdatesTotalsAndOdds(t *testing.T) {
	m := NewManager(odds.NewPressureEngine())
	m.SeedOdds("event-1", seedOdds())

	snap := m.ApplyWager("event-1", model.BetSummary{
		ID: "w1", Username: "alice", OptionKey: "home",
		Amount: dec("50"), Odds: dec("2.1"), Timestamp: time.Now(),
	})

	if got := snap.TotalBets["home"]; got.Count != 1 || !got.Amount.Equal(dec("50")) {
		t.Errorf("home totals = %+v, want count 1 amount 50", got)
	}
	// All the money on home: its odds shorten, the neglected ones drift out.
	if !snap.CurrentOdds["home"].LessThan(dec("2.1")) {
		t.Errorf("home odds = %s, want shortened below 2.1", snap.CurrentOdds["home"])
	}
	if !snap.CurrentOdds["away"].GreaterThan(dec("2.8")) {
		t.Errorf("away odds = %s, want lengthened above 2.8", snap.CurrentOdds["away"])
	}
	if len(snap.RecentBets) != 1 || snap.RecentBets[0].ID != "w1" {
		t.Errorf("recent bets = %+v, want the applied wager", snap.RecentBets)
	}
}

func TestRecentActivityCapNewestFirst(t *testing.T) {
	m := NewManager(odds.NewPressureEngine())
	m.SeedOdds("event-1", seedOdds())

	for i := 0; i < RecentActivityCap+5; i++ {
		m.RecordActivity("event-1", model.BetSummary{
			ID:        fmt.Sprintf("w%d", i),
			OptionKey: "home",
			Amount:    dec("5"),
		})
	}

	snap, _ := m.Snapshot("event-1")
	if len(snap.RecentBets) != RecentActivityCap {
		t.Fatalf("recent bets = %d, want capped at %d", len(snap.RecentBets), RecentActivityCap)
	}
	if snap.RecentBets[0].ID != fmt.Sprintf("w%d", RecentActivityCap+4) {
		t.Errorf("newest entry = %s, want the last recorded", snap.RecentBets[0].ID)
	}
}

func TestSeedOddsNeverOverwritesLiveOdds(t *testing.T) {
	m := NewManager(odds.NewPressureEngine())
	m.SeedOdds("event-1", seedOdds())

	m.ApplyWager("event-1", model.BetSummary{ID: "w1", OptionKey: "home", Amount: dec("50")})
	moved, _ := m.OddsFor("event-1", "home")

	m.SeedOdds("event-1", seedOdds())
	after, _ := m.OddsFor("event-1", "home")

	if !after.Equal(moved) {
		t.Errorf("odds after reseed = %s, want live value %s preserved", after, moved)
	}
}

func TestBroadcastMissingRoomIsNoOp(t *testing.T) {
	m := NewManager(odds.NewPressureEngine())
	// Must not create the room or panic.
	m.Broadcast("nowhere", EventOddsUpdate, nil)

	if _, ok := m.Snapshot("nowhere"); ok {
		t.Error("broadcast created a room")
	}
}

func TestSweepEvictsOnlyExpiredEmptyRooms(t *testing.T) {
	m := NewManager(odds.NewPressureEngine())
	now := time.Now().UTC()
	ttl := 5 * time.Minute

	// Empty past the grace period: evicted.
	m.SeedOdds("stale", seedOdds())
	if r, ok := m.lookup("stale"); ok {
		r.mu.Lock()
		r.emptySince = now.Add(-ttl - time.Minute)
		r.mu.Unlock()
	}

	// Empty but fresh: kept.
	m.SeedOdds("fresh", seedOdds())

	// Occupied: kept regardless of age.
	m.Join("busy", "u1", "alice", "conn-1", &recorder{})

	m.sweepOnce(now, ttl)

	if _, ok := m.Snapshot("stale"); ok {
		t.Error("stale empty room survived the sweep")
	}
	if _, ok := m.Snapshot("fresh"); !ok {
		t.Error("fresh empty room was evicted")
	}
	if _, ok := m.Snapshot("busy"); !ok {
		t.Error("occupied room was evicted")
	}
}

func TestRejoinDoesNotInflateParticipantGauge(t *testing.T) {
	m := NewManager(odds.NewPressureEngine())

	before := testutil.ToFloat64(metrics.RoomParticipants)

	s := &recorder{}
	m.Join("event-1", "u1", "alice", "conn-1", s)
	m.Join("event-1", "u1", "alice", "conn-1", s)
	m.Join("event-1", "u1", "alice", "conn-1", s)

	if got := testutil.ToFloat64(metrics.RoomParticipants); got != before+1 {
		t.Errorf("participant gauge = %v, want %v after repeated rejoin", got, before+1)
	}

	m.Leave("conn-1")
	if got := testutil.ToFloat64(metrics.RoomParticipants); got != before {
		t.Errorf("participant gauge = %v, want %v after leave", got, before)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewManager(odds.NewPressureEngine())
	m.SeedOdds("event-1", seedOdds())

	snap, _ := m.Snapshot("event-1")
	snap.CurrentOdds["home"] = dec("999")

	again, _ := m.Snapshot("event-1")
	if !again.CurrentOdds["home"].Equal(dec("2.1")) {
		t.Errorf("room odds = %s, want 2.1 untouched by snapshot mutation", again.CurrentOdds["home"])
	}
}
