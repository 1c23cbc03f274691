package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/swipeshot/internal/app"
)

const (
	writeWait  = 5 * time.Second
	clientSend = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Subscriber delivers pipeline events.
type Subscriber interface {
	Subscribe(l app.Listener) func()
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventsHandler pushes pipeline events (readings, captures, status) to
// WebSocket clients. Slow clients drop messages rather than stall detection.
type EventsHandler struct {
	logger      *zap.Logger
	unsubscribe func()
	closeOnce   sync.Once

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewEventsHandler subscribes to src and returns the handler.
func NewEventsHandler(src Subscriber, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &EventsHandler{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
	h.unsubscribe = src.Subscribe(h.broadcast)
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientSend)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("events client connected", zap.String("remote", r.RemoteAddr))

	go h.writePump(c)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("events client disconnected", zap.String("remote", r.RemoteAddr))
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops receiving events and disconnects every client.
func (h *EventsHandler) Close() {
	h.closeOnce.Do(func() {
		h.unsubscribe()
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
	})
}

func (h *EventsHandler) writePump(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// broadcast is the app.Listener. It never blocks.
func (h *EventsHandler) broadcast(e app.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(e)
	if err != nil {
		h.logger.Warn("failed to encode event", zap.Error(err))
		return
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}
