package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/plotsync/plotsync/internal/reader"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// ProgressMessage is one frame on the progress stream.
type ProgressMessage struct {
	Type      string               `json:"type"` // "progress"
	ProjectID string               `json:"project_id,omitempty"`
	Path      string               `json:"path,omitempty"`
	Event     reader.ProgressEvent `json:"event"`
	Timestamp time.Time            `json:"timestamp"`
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	closed atomic.Bool
}

func (c *client) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.send)
	}
}

// Hub fans progress messages out to every connected websocket client.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	mu      sync.RWMutex
	clients map[*client]struct{}

	upgrader websocket.Upgrader
	logger   *slog.Logger
	done     chan struct{}
}

// NewHub creates a hub. allowOrigin decides websocket origins; nil allows
// all.
func NewHub(logger *slog.Logger, allowOrigin func(origin string) bool) *Hub {
	h := &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		clients:    make(map[*client]struct{}),
		logger:     logger,
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin == nil || allowOrigin(origin)
		},
	}
	return h
}

// Run serves the hub until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("progress client connected", "remote", c.conn.RemoteAddr().String())

		case c := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			c.close()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.closed.Load() {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// slow consumer; drop it rather than stall the others
					go h.drop(c)
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.close()
			}
			h.clients = make(map[*client]struct{})
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues msg for every client. It never blocks: when the queue is
// full the message is dropped.
func (h *Hub) Publish(msg ProgressMessage) {
	if msg.Type == "" {
		msg.Type = "progress"
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("encode progress message", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Debug("progress queue full, dropping message")
	}
}

// Reporter returns a reader progress callback that publishes to the hub.
func (h *Hub) Reporter(projectID, path string) func(reader.ProgressEvent) {
	return func(ev reader.ProgressEvent) {
		h.Publish(ProgressMessage{ProjectID: projectID, Path: path, Event: ev})
	}
}

// ServeWS upgrades the request and streams progress until the client goes
// away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump only watches for the close; clients send nothing we act on.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.drop(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
