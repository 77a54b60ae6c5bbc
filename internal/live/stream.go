package live

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HandleEventStream handles GET /api/v1/events/stream — a server-sent
// events feed of the bus. Clients that cannot hold a WebSocket open (or
// external notifiers) consume settlement outcomes here; the periodic
// heartbeat keeps intermediaries from reaping the connection.
func (s *Service) HandleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := s.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
		}
	}
}
