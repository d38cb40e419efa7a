package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maksimkurb/keen-relay/src/internal/log"
)

const (
	eventsBuffer     = 64
	eventsWriteWait  = 10 * time.Second
	eventsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	// Access is already limited by PrivateSubnetOnly.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamEvents streams live tunnel and DNS events as JSON messages. The
// optional "source" query parameter (tunnel or dns) filters the stream.
// GET /api/v1/events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Events == nil {
		WriteUnavailable(w, "Event stream")
		return
	}
	source := r.URL.Query().Get("source")
	if source != "" && source != "tunnel" && source != "dns" {
		WriteInvalidRequest(w, "source must be tunnel or dns")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		log.Debugf("[API] WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.deps.Events.Subscribe(eventsBuffer)
	defer sub.Close()

	// The read side only watches for the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if source != "" && msg.Source != source {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debugf("[API] Event stream closed: %v", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
