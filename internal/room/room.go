// Package room owns the in-memory live-betting rooms: one per event,
// holding the participant roster, current odds, wager totals, and the
// recent-activity feed. Rooms are created lazily on first join and mutated
// only through the Manager; no other component reaches into a room's
// internals directly.
package room

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zestbet/live-engine/internal/model"
)

// RecentActivityCap bounds the recent-bets feed; the oldest entry is
// dropped once the feed is full.
const RecentActivityCap = 20

// Event names pushed to room participants.
const (
	EventBettingData       = "betting-data-update"
	EventOddsUpdate        = "odds-update"
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventLiveMessage       = "live-message"
)

// Sender delivers one typed event to a connected participant. Send must
// not block the caller; hub clients enqueue onto a buffered channel.
type Sender interface {
	Send(eventType string, payload any)
}

type participant struct {
	userID   string
	username string
	sender   Sender
}

// room is the per-event mutable state. All fields are guarded by mu;
// broadcast sends happen outside the lock on a snapshot of senders.
type room struct {
	mu      sync.Mutex
	eventID string

	participants map[string]participant // keyed by connection id
	currentOdds  map[string]decimal.Decimal
	totals       map[string]model.OptionTotals
	recent       []model.BetSummary

	emptySince time.Time // zero while occupied
}

func newRoom(eventID string) *room {
	return &room{
		eventID:      eventID,
		participants: make(map[string]participant),
		currentOdds:  make(map[string]decimal.Decimal),
		totals:       make(map[string]model.OptionTotals),
		emptySince:   time.Now().UTC(),
	}
}

// snapshotLocked builds a RoomSnapshot copy. Caller holds r.mu.
func (r *room) snapshotLocked() model.RoomSnapshot {
	odds := make(map[string]decimal.Decimal, len(r.currentOdds))
	for k, v := range r.currentOdds {
		odds[k] = v
	}
	totals := make(map[string]model.OptionTotals, len(r.totals))
	for k, v := range r.totals {
		totals[k] = v
	}
	recent := make([]model.BetSummary, len(r.recent))
	copy(recent, r.recent)

	return model.RoomSnapshot{
		EventID:          r.eventID,
		CurrentOdds:      odds,
		RecentBets:       recent,
		TotalBets:        totals,
		ParticipantCount: len(r.participants),
	}
}

// sendersLocked returns the senders to broadcast to, excluding the given
// connection id (empty string excludes nobody). Caller holds r.mu.
func (r *room) sendersLocked(exceptConnID string) []Sender {
	senders := make([]Sender, 0, len(r.participants))
	for connID, p := range r.participants {
		if connID == exceptConnID {
			continue
		}
		senders = append(senders, p.sender)
	}
	return senders
}

// recordActivityLocked prepends a bet summary, truncating the feed.
// Caller holds r.mu.
func (r *room) recordActivityLocked(summary model.BetSummary) {
	r.recent = append([]model.BetSummary{summary}, r.recent...)
	if len(r.recent) > RecentActivityCap {
		r.recent = r.recent[:RecentActivityCap]
	}
}
