package monitor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/dispatch"
)

const (
	clientBuffer = 256
	writeTimeout = 5 * time.Second
)

// Message is what an /events client receives for one published event.
type Message struct {
	Key   string `json:"key"`
	Kind  string `json:"kind"`
	Event any    `json:"event"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to websocket clients. Slow clients lose messages
// instead of blocking the publisher.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	kinds   map[dispatch.Kind]struct{}
	dropped uint64
}

// NewHub forwards only the given kinds, or every kind when none is given.
func NewHub(logger *zap.Logger, kinds ...dispatch.Kind) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
	if len(kinds) > 0 {
		h.kinds = make(map[dispatch.Kind]struct{}, len(kinds))
		for _, kind := range kinds {
			h.kinds[kind] = struct{}{}
		}
	}
	return h
}

// Tap is a dispatch.Tap. It never blocks.
func (h *Hub) Tap(key dispatch.Key, event any) {
	if h.kinds != nil {
		if _, ok := h.kinds[key.Kind]; !ok {
			return
		}
	}

	h.mu.RLock()
	empty := len(h.clients) == 0
	h.mu.RUnlock()
	if empty {
		return
	}

	data, err := json.Marshal(Message{Key: key.String(), Kind: key.Kind.String(), Event: event})
	if err != nil {
		h.logger.Warn("unable to marshal event", zap.Stringer("key", key), zap.Error(err))
		return
	}
	h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped++
		}
	}
}

func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("events client connected", zap.String("remote", conn.RemoteAddr().String()))
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) serve(c *client) {
	go h.read(c)
	h.write(c)
}

// read only watches for the peer going away.
func (h *Hub) read(c *client) {
	defer h.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("events client read failed", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) write(c *client) {
	defer func() {
		_ = c.conn.Close()
	}()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("events client write failed", zap.Error(err))
			h.unregister(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
