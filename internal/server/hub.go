package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"catdash/internal/poller"
)

const writeWait = 10 * time.Second

// Message is the envelope pushed to websocket clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	MessageSnapshot = "snapshot"
	MessageAlerts   = "alerts"
)

// Hub fans poller updates out to connected websocket clients.
type Hub struct {
	clients  map[*client]struct{}
	mu       sync.Mutex
	upgrader websocket.Upgrader
	current  SnapshotSource
	logger   *zap.Logger
}

// client serializes writes to one connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(payload)
}

func (c *client) writeLocked(payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func NewHub(current SnapshotSource, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[*client]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		current:  current,
		logger:   logger,
	}
}

// Run forwards updates until ctx is done or the channel closes, then disconnects every client.
func (h *Hub) Run(ctx context.Context, updates <-chan poller.Update) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			h.Broadcast(Message{Type: MessageSnapshot, Data: update.Current})
			if len(update.Alerts) > 0 {
				h.Broadcast(Message{Type: MessageAlerts, Data: update.Alerts})
			}
		}
	}
}

// Broadcast writes msg to every client concurrently, dropping clients whose write fails.
// The client set is not locked during writes.
func (h *Hub) Broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal websocket message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var wg conc.WaitGroup
	for _, c := range targets {
		c := c
		wg.Go(func() {
			if err := c.write(payload); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				h.remove(c)
			}
		})
	}
	wg.Wait()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and sends the current snapshot before any update.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	// Holding the client lock while registering keeps broadcasts behind the initial snapshot.
	c.mu.Lock()
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if h.current != nil {
		if snap, ok := h.current.Current(); ok {
			payload, err := json.Marshal(Message{Type: MessageSnapshot, Data: snap})
			if err == nil {
				err = c.writeLocked(payload)
			}
			if err != nil {
				c.mu.Unlock()
				h.logger.Debug("initial snapshot write failed", zap.Error(err))
				h.remove(c)
				return
			}
		}
	}
	c.mu.Unlock()

	go func() {
		defer h.remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range targets {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		c.conn.Close()
	}
}
