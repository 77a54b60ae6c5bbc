package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/zestbet/live-engine/internal/metrics"
	"github.com/zestbet/live-engine/internal/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 32
)

// clientMessage is the inbound frame from a room socket.
type clientMessage struct {
	Type     string          `json:"type"`
	EventID  string          `json:"eventId"`
	MarketID string          `json:"marketId"`
	UserID   string          `json:"userId"`
	Username string          `json:"username"`
	BetType  string          `json:"betType"`
	Amount   decimal.Decimal `json:"amount"`
	Message  string          `json:"message"`
}

// serverMessage is the outbound frame pushed to a room socket.
type serverMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub upgrades room socket connections and translates the wire protocol
// (join-live-event, place-live-bet, request-odds-update) into calls on
// the Service and room Manager. Placement goes through the same
// Service.Place as the REST path.
type Hub struct {
	svc      *Service
	upgrader websocket.Upgrader
}

// NewHub creates a WebSocket hub over the given service.
func NewHub(svc *Service) *Hub {
	return &Hub{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true // Allow all origins during development.
			},
		},
	}
}

// client is one connected room socket. It implements room.Sender; sends
// enqueue onto a buffered channel drained by the write pump, so a slow
// socket never blocks a broadcast.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	connID string
	send   chan serverMessage
	done   chan struct{}
}

// Send implements room.Sender. Drops the message when the client's queue
// is full or the connection is gone. The send channel is never closed;
// broadcasts can race with disconnect.
func (c *client) Send(eventType string, payload any) {
	select {
	case c.send <- serverMessage{Type: eventType, Data: payload}:
	case <-c.done:
	default:
	}
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		connID: uuid.New().String(),
		send:   make(chan serverMessage, sendBufferSize),
		done:   make(chan struct{}),
	}

	metrics.WebSocketClients.Inc()

	go c.writePump()
	go c.readPump()
}

// readPump consumes client frames until the connection drops, then runs
// the room cleanup. Disconnect cleanup never fails loudly.
func (c *client) readPump() {
	defer func() {
		c.hub.svc.Rooms().Leave(c.connID)
		close(c.done)
		c.conn.Close()
		metrics.WebSocketClients.Dec()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Send("bet-error", map[string]string{"message": "invalid message"})
			continue
		}
		c.dispatch(msg)
	}
}

// writePump drains the send queue and keeps the connection alive through
// proxies with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame.
func (c *client) dispatch(msg clientMessage) {
	switch msg.Type {
	case "join-live-event":
		c.handleJoin(msg)
	case "place-live-bet":
		c.handlePlaceBet(msg)
	case "request-odds-update":
		c.handleOddsRequest(msg)
	case "send-live-message":
		c.handleChatMessage(msg)
	default:
		slog.Debug("unknown ws message type", "type", msg.Type)
	}
}

func (c *client) handleJoin(msg clientMessage) {
	if msg.EventID == "" || msg.UserID == "" {
		c.Send("bet-error", map[string]string{"message": "eventId and userId are required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Seed the room from the event's open markets before the roster
	// update so the join snapshot already carries odds.
	if _, err := c.hub.svc.ListMarkets(ctx, msg.EventID); err != nil {
		slog.Warn("market seed on join failed", "event_id", msg.EventID, "err", err)
	}

	snap := c.hub.svc.Rooms().Join(msg.EventID, msg.UserID, msg.Username, c.connID, c)
	c.Send(room.EventBettingData, snap)
}

func (c *client) handlePlaceBet(msg clientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	marketID := msg.MarketID
	if marketID == "" {
		// Older clients bet on the event's primary market without naming it.
		markets, err := c.hub.svc.ListMarkets(ctx, msg.EventID)
		if err != nil || len(markets) == 0 {
			c.Send("bet-error", map[string]string{"message": "no open market for event"})
			return
		}
		marketID = markets[0].ID
	}

	wager, _, err := c.hub.svc.Place(ctx, PlaceParams{
		EventID:   msg.EventID,
		MarketID:  marketID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		OptionKey: msg.BetType,
		Amount:    msg.Amount,
	})
	if err != nil {
		c.Send("bet-error", map[string]string{"message": err.Error()})
		return
	}

	// The room-wide betting-data-update is broadcast by Place; the
	// placer additionally gets a confirmation.
	c.Send("bet-placed", map[string]any{
		"success": true,
		"betId":   wager.ID,
		"message": "Bet placed successfully",
	})
}

// handleChatMessage relays a room chat message to every participant,
// sender included.
func (c *client) handleChatMessage(msg clientMessage) {
	if msg.EventID == "" || msg.Message == "" {
		return
	}
	c.hub.svc.Rooms().Broadcast(msg.EventID, room.EventLiveMessage, map[string]any{
		"id":        uuid.New().String(),
		"userId":    msg.UserID,
		"username":  msg.Username,
		"message":   msg.Message,
		"timestamp": time.Now().UTC(),
	})
}

func (c *client) handleOddsRequest(msg clientMessage) {
	snap, ok := c.hub.svc.Rooms().Snapshot(msg.EventID)
	if !ok {
		c.Send(room.EventOddsUpdate, map[string]any{"currentOdds": map[string]any{}})
		return
	}
	c.Send(room.EventOddsUpdate, map[string]any{"currentOdds": snap.CurrentOdds})
}
