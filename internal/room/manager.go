package room

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zestbet/live-engine/internal/metrics"
	"github.com/zestbet/live-engine/internal/model"
	"github.com/zestbet/live-engine/internal/odds"
)

// Manager is the room registry. It creates rooms lazily, serializes all
// mutation of a room's state behind that room's own mutex, and evicts
// rooms that stay empty past a grace period.
type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	engine odds.Engine
}

// NewManager creates a registry using the given odds engine for
// post-wager recomputes.
func NewManager(engine odds.Engine) *Manager {
	return &Manager{
		rooms:  make(map[string]*room),
		engine: engine,
	}
}

// ensure returns the room for eventID, creating it if absent.
func (m *Manager) ensure(eventID string) *room {
	m.mu.RLock()
	r, ok := m.rooms[eventID]
	m.mu.RUnlock()
	if ok {
		return r
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[eventID]; ok {
		return r
	}
	r = newRoom(eventID)
	m.rooms[eventID] = r
	metrics.ActiveRooms.Inc()
	slog.Info("room created", "event_id", eventID)
	return r
}

// lookup returns the room for eventID without creating it.
func (m *Manager) lookup(eventID string) (*room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[eventID]
	return r, ok
}

// SeedOdds installs the market's opening odds into the room for any option
// key the room does not already track. Existing live odds are never
// overwritten.
func (m *Manager) SeedOdds(eventID string, opening map[string]decimal.Decimal) {
	r := m.ensure(eventID)
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, o := range opening {
		if _, ok := r.currentOdds[key]; !ok {
			r.currentOdds[key] = o
			r.totals[key] = model.OptionTotals{Amount: decimal.Zero}
		}
	}
}

// Join registers a participant, creating the room if needed. Re-joining
// with the same connection id replaces the prior entry; a connection that
// was in another room is removed from it first. Other participants are
// notified with a participant-joined event. Returns the current snapshot
// for the joining client.
func (m *Manager) Join(eventID, userID, username, connID string, sender Sender) model.RoomSnapshot {
	m.removeConn(connID, eventID)

	r := m.ensure(eventID)

	r.mu.Lock()
	_, rejoining := r.participants[connID]
	r.participants[connID] = participant{userID: userID, username: username, sender: sender}
	r.emptySince = time.Time{}
	snap := r.snapshotLocked()
	others := r.sendersLocked(connID)
	r.mu.Unlock()

	// A rejoin replaces the roster entry; the gauge only moves for
	// connections that were not already counted.
	if !rejoining {
		metrics.RoomParticipants.Inc()
	}
	slog.Info("participant joined", "event_id", eventID, "user_id", userID, "participants", snap.ParticipantCount)

	notify(others, EventParticipantJoined, map[string]any{
		"userId":           userID,
		"username":         username,
		"participantCount": snap.ParticipantCount,
	})

	return snap
}

// Leave removes the connection from whichever room holds it and notifies
// the remaining participants. Unknown connections are a benign no-op —
// normal churn, never an error.
func (m *Manager) Leave(connID string) {
	m.removeConn(connID, "")
}

// removeConn drops connID from every room except skipEventID, broadcasting
// participant-left to the rooms it actually left.
func (m *Manager) removeConn(connID, skipEventID string) {
	m.mu.RLock()
	rooms := make([]*room, 0, len(m.rooms))
	for eventID, r := range m.rooms {
		if eventID == skipEventID {
			continue
		}
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	for _, r := range rooms {
		r.mu.Lock()
		p, ok := r.participants[connID]
		if !ok {
			r.mu.Unlock()
			continue
		}
		delete(r.participants, connID)
		if len(r.participants) == 0 {
			r.emptySince = time.Now().UTC()
		}
		count := len(r.participants)
		others := r.sendersLocked("")
		eventID := r.eventID
		r.mu.Unlock()

		metrics.RoomParticipants.Dec()
		slog.Info("participant left", "event_id", eventID, "user_id", p.userID, "participants", count)

		notify(others, EventParticipantLeft, map[string]any{
			"userId":           p.userID,
			"username":         p.username,
			"participantCount": count,
		})
	}
}

// Broadcast sends payload to every live participant of the room. A missing
// or empty room is a no-op, not an error.
func (m *Manager) Broadcast(eventID, eventType string, payload any) {
	r, ok := m.lookup(eventID)
	if !ok {
		return
	}
	r.mu.Lock()
	senders := r.sendersLocked("")
	r.mu.Unlock()

	notify(senders, eventType, payload)
}

// RecordActivity prepends a wager summary to the room's recent-activity
// feed, truncating to the newest entries.
func (m *Manager) RecordActivity(eventID string, summary model.BetSummary) {
	r := m.ensure(eventID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordActivityLocked(summary)
}

// ApplyWager folds an accepted wager into the room in one critical
// section: totals, odds recompute, and the activity feed. Returns the
// updated snapshot for broadcasting.
func (m *Manager) ApplyWager(eventID string, summary model.BetSummary) model.RoomSnapshot {
	r := m.ensure(eventID)

	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.totals[summary.OptionKey]
	t.Count++
	t.Amount = t.Amount.Add(summary.Amount)
	r.totals[summary.OptionKey] = t

	r.currentOdds = m.engine.Recompute(summary.OptionKey, r.totals, r.currentOdds)
	r.recordActivityLocked(summary)

	return r.snapshotLocked()
}

// OddsFor returns the room's live odds for one option key.
func (m *Manager) OddsFor(eventID, optionKey string) (decimal.Decimal, bool) {
	r, ok := m.lookup(eventID)
	if !ok {
		return decimal.Decimal{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.currentOdds[optionKey]
	return o, ok
}

// Snapshot returns the current room snapshot, or false when the room does
// not exist.
func (m *Manager) Snapshot(eventID string) (model.RoomSnapshot, bool) {
	r, ok := m.lookup(eventID)
	if !ok {
		return model.RoomSnapshot{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(), true
}

// RunSweeper evicts rooms that have been empty for longer than ttl,
// checking every interval, until the context is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce(time.Now().UTC(), ttl)
		}
	}
}

// sweepOnce removes rooms whose emptySince is older than now-ttl.
func (m *Manager) sweepOnce(now time.Time, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for eventID, r := range m.rooms {
		r.mu.Lock()
		empty := len(r.participants) == 0
		since := r.emptySince
		r.mu.Unlock()

		if empty && !since.IsZero() && now.Sub(since) >= ttl {
			delete(m.rooms, eventID)
			metrics.ActiveRooms.Dec()
			slog.Info("empty room evicted", "event_id", eventID)
		}
	}
}

// notify fans an event out to senders. Runs outside any room lock so a
// slow connection cannot stall room mutation.
func notify(senders []Sender, eventType string, payload any) {
	for _, s := range senders {
		s.Send(eventType, payload)
	}
}
