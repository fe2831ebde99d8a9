package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans market snapshots out to websocket subscribers
type Hub struct {
	upgrader websocket.Upgrader
	source   func() interface{}
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates a hub publishing whatever source returns
func NewHub(source func() interface{}, logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		source:  source,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Clients is the number of connected subscribers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and keeps the subscriber until it disconnects
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("Failed to upgrade connection", "error", err)
		return
	}

	client := &wsClient{conn: conn}
	defer h.drop(client)

	// the initial snapshot goes to the new subscriber only
	data, err := json.Marshal(h.source())
	if err != nil {
		h.logger.Errorw("Failed to marshal snapshot", "error", err)
		return
	}
	if err := client.write(data); err != nil {
		return
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.conn.Close()
}

// Broadcast sends v to every subscriber, dropping those that fail
func (h *Hub) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Errorw("Failed to marshal snapshot", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Warnw("Failed to send message", "error", err)
			h.drop(c)
		}
	}
}

// Run broadcasts the source every interval until ctx is done
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Broadcast(h.source())
		}
	}
}
