/*
stream.go - Websocket change feed

PURPOSE:
  Pushes calendar events to connected clients so open views refresh after
  another user's change. Each connection subscribes to the bus with the
  scope of its actor: members and managers see their team, admins see
  everything.

PROTOCOL:
  GET /api/stream upgrades to a websocket. The server writes one JSON
  calendar.Event per text message and a ping every pingInterval. Client
  messages are read and discarded; closing the socket ends the
  subscription.

  Browsers cannot set headers on a websocket handshake, so the actor may
  also come from the actor_id, actor_role and actor_team query params.

SEE ALSO:
  - calendar/notifier.go: Bus, Scope and Event
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/warp/slot-calendar/calendar"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are already filtered by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Stream serves the websocket change feed.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	hdr := r.Header.Clone()
	q := r.URL.Query()
	for param, name := range map[string]string{"actor_id": "X-Actor-ID", "actor_role": "X-Actor-Role", "actor_team": "X-Actor-Team"} {
		if hdr.Get(name) == "" && q.Get(param) != "" {
			hdr.Set(name, q.Get(param))
		}
	}
	actor, err := actorFromHeaders(hdr)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Missing or invalid actor", err)
		return
	}

	// Subscribe before the handshake completes so no event published after
	// the client sees the upgrade is missed.
	sub := h.Bus.Subscribe(calendar.ScopeFor(actor))
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		sub.Close()
		return
	}
	defer ws.Close()

	log := h.Logger.With(
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("actor_id", actor.ID))
	log.Info("stream opened")
	defer func() {
		sub.Close()
		log.Info("stream closed", zap.Int("dropped", sub.Dropped()))
	}()

	// Reader: handles pongs and notices when the client goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		ws.SetReadLimit(512)
		ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(e); err != nil {
				log.Debug("stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
