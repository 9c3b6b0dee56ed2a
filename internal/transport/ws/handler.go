// Package ws streams incident lifecycle events to WebSocket clients by
// bridging in-process dispatcher subscriptions to connections.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opsdeck/helpdesk/internal/dispatch"
	"github.com/opsdeck/helpdesk/internal/domain"
	"github.com/opsdeck/helpdesk/internal/pkg/ctxlog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// sendBuffer bounds the per-connection queue. A client that cannot
	// keep up is disconnected rather than allowed to grow the queue.
	sendBuffer = 32
)

// Handler upgrades HTTP requests to WebSocket connections fed by the
// event dispatcher.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	upgrader   websocket.Upgrader
}

// NewHandler creates a WebSocket handler. checkOrigin decides which
// Origin headers may connect; nil allows same-host only.
func NewHandler(dispatcher *dispatch.Dispatcher, checkOrigin func(*http.Request) bool) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Serve handles GET /ws?incident={id|*}. With incident=* (the default)
// the client receives every event; with an id only that incident's.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	topic := dispatch.TopicAll
	if id := r.URL.Query().Get("incident"); id != "" && id != "*" {
		topic = dispatch.Topic(id)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		ctxlog.FromContext(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}

	logger := ctxlog.FromContext(r.Context()).With("topic", topic, "remote_addr", conn.RemoteAddr().String())

	send := make(chan []byte, sendBuffer)
	done := make(chan struct{})

	sub := h.dispatcher.Subscribe(topic, func(ev domain.LifecycleEvent) {
		payload, err := json.Marshal(ev)
		if err != nil {
			logger.Error("marshal event", "error", err)
			return
		}
		select {
		case send <- payload:
		case <-done:
		default:
			logger.Warn("client too slow, closing",
				"incident_id", ev.IncidentID,
				"event_type", ev.Type,
			)
			conn.Close()
		}
	})

	// Read pump: the client sends nothing meaningful, but reading is
	// required to process control frames and notice disconnects.
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.writePump(conn, send, done)

	h.dispatcher.Unsubscribe(sub)
	conn.Close()
	logger.Debug("websocket client disconnected")
}

func (h *Handler) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
