package live

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zestbet/live-engine/internal/metrics"
	"github.com/zestbet/live-engine/internal/room"
)

// The upgrade must succeed behind the metrics middleware: the wrapped
// writer has to pass Hijack through or every socket dies at the handshake.
func TestWebSocketUpgradeBehindMetricsMiddleware(t *testing.T) {
	f := newFixture(t)
	hub := NewHub(f.svc)

	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/api/v1/ws", hub.HandleWS)

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial failed with status %d: %v", status, err)
	}
	defer conn.Close()

	join := map[string]string{
		"type":     "join-live-event",
		"eventId":  "event-1",
		"userId":   "u1",
		"username": "alice",
	}
	if err := conn.WriteJSON(join); err != nil {
		t.Fatalf("write join: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read join snapshot: %v", err)
	}
	if msg.Type != room.EventBettingData {
		t.Errorf("first frame type = %q, want %q", msg.Type, room.EventBettingData)
	}
}

// roomRecorder collects room events for assertions.
type roomRecorder struct {
	mu     sync.Mutex
	events []struct {
		Type    string
		Payload any
	}
}

func (r *roomRecorder) Send(eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, struct {
		Type    string
		Payload any
	}{eventType, payload})
}

func (r *roomRecorder) find(eventType string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == eventType {
			return e.Payload, true
		}
	}
	return nil, false
}

func TestChatMessageReachesWholeRoom(t *testing.T) {
	f := newFixture(t)
	hub := NewHub(f.svc)

	other := &roomRecorder{}
	f.svc.Rooms().Join("event-1", "u2", "bob", "conn-other", other)

	sender := &client{
		hub:  hub,
		send: make(chan serverMessage, sendBufferSize),
		done: make(chan struct{}),
	}
	f.svc.Rooms().Join("event-1", "u1", "alice", "conn-sender", sender)

	sender.dispatch(clientMessage{
		Type:     "send-live-message",
		EventID:  "event-1",
		UserID:   "u1",
		Username: "alice",
		Message:  "Auf geht's!",
	})

	payload, ok := other.find("live-message")
	if !ok {
		t.Fatal("other participant did not receive the chat message")
	}
	chat, ok := payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %T, want map", payload)
	}
	if chat["message"] != "Auf geht's!" || chat["username"] != "alice" {
		t.Errorf("chat payload = %+v, want alice's message", chat)
	}
	if chat["id"] == "" {
		t.Error("chat payload missing id")
	}

	// The sender hears its own message too.
	found := false
	for len(sender.send) > 0 {
		msg := <-sender.send
		if msg.Type == "live-message" {
			found = true
		}
	}
	if !found {
		t.Error("sender did not receive its own chat message")
	}
}

func TestChatMessageRequiresEventAndText(t *testing.T) {
	f := newFixture(t)
	hub := NewHub(f.svc)

	other := &roomRecorder{}
	f.svc.Rooms().Join("event-1", "u2", "bob", "conn-other", other)

	sender := &client{
		hub:  hub,
		send: make(chan serverMessage, sendBufferSize),
		done: make(chan struct{}),
	}

	sender.dispatch(clientMessage{Type: "send-live-message", EventID: "event-1", UserID: "u1"})
	sender.dispatch(clientMessage{Type: "send-live-message", Message: "no room", UserID: "u1"})

	if _, ok := other.find("live-message"); ok {
		t.Error("empty or roomless chat message was broadcast")
	}
}
