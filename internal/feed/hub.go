// Package feed pushes run progress events to websocket subscribers of a version.
package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/domusnext/eval/internal/domain"
	"github.com/domusnext/eval/internal/logging"
)

// sendBufferSize bounds the queued messages per connection.
const sendBufferSize = 256

// Connection represents a single websocket subscriber.
type Connection struct {
	ID        string
	VersionID string
	Conn      *websocket.Conn
	Send      chan []byte
	mu        sync.Mutex
}

// Hub manages all feed connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// topics maps version_id to set of connection IDs
	topics map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *topicMessage
	done       chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

type topicMessage struct {
	VersionID string
	Data      []byte
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		topics:      make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *topicMessage, sendBufferSize),
		done:        make(chan struct{}),
		logger:      logging.OrNop(logger),
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled,
// closing every connection's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.topics[conn.VersionID] == nil {
				h.topics[conn.VersionID] = make(map[string]bool)
			}
			h.topics[conn.VersionID][conn.ID] = true
			h.mu.Unlock()
			h.logger.Debug("feed connection registered", zap.String("conn_id", conn.ID), zap.String("version_id", conn.VersionID))

		case conn := <-h.unregister:
			h.remove(conn)

		case msg := <-h.broadcast:
			var full []*Connection
			h.mu.RLock()
			for connID := range h.topics[msg.VersionID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					full = append(full, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range full {
				h.logger.Warn("feed connection buffer full, closing", zap.String("conn_id", conn.ID))
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if ids := h.topics[conn.VersionID]; ids != nil {
		delete(ids, conn.ID)
		if len(ids) == 0 {
			delete(h.topics, conn.VersionID)
		}
	}
	close(conn.Send)
	h.logger.Debug("feed connection unregistered", zap.String("conn_id", conn.ID))
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	for id, conn := range h.connections {
		close(conn.Send)
		delete(h.connections, id)
	}
	h.topics = make(map[string]map[string]bool)
	h.mu.Unlock()
	close(h.done)
}

// NewConnection creates a connection subscribed to versionID.
func (h *Hub) NewConnection(ws *websocket.Conn, versionID string) *Connection {
	return &Connection{
		ID:        uuid.New().String(),
		VersionID: versionID,
		Conn:      ws,
		Send:      make(chan []byte, sendBufferSize),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		return false
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish sends an event to every subscriber of versionID.
// Events are dropped rather than blocking the caller when the hub is saturated or stopped.
func (h *Hub) Publish(versionID string, event domain.FeedEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode feed event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- &topicMessage{VersionID: versionID, Data: data}:
	case <-h.done:
	default:
		h.logger.Warn("feed broadcast queue full, dropping event",
			zap.String("version_id", versionID), zap.String("type", string(event.Type)))
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasSubscribers checks if a version has any active connections.
func (h *Hub) HasSubscribers(versionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[versionID]) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
