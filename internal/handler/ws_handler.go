package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/warmleadnetwork/voice-call-service/internal/broadcast"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WSHandler upgrades dashboard connections and forwards hub events as JSON.
type WSHandler struct {
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new websocket handler
func NewWSHandler(hub *broadcast.Hub) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards are served from other origins; CORS policy is
			// handled at the edge.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe streams call events to one websocket client until it disconnects.
func (h *WSHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Base().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				logger.Base().Debug("websocket write failed, dropping client", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
