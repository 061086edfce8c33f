package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"monuguard/internal/logger"
	"monuguard/internal/pipeline"
)

// client serializes writes to one connection
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(messageType, data)
}

// AnalysisHub manages WebSocket connections following analysis runs
type AnalysisHub struct {
	// clients maps video_id -> set of connections
	clients map[string]map[*websocket.Conn]*client
	mu      sync.RWMutex
}

// NewAnalysisHub creates a new analysis hub
func NewAnalysisHub() *AnalysisHub {
	return &AnalysisHub{
		clients: make(map[string]map[*websocket.Conn]*client),
	}
}

// register adds a connection for a specific video
func (h *AnalysisHub) register(videoID string, conn *websocket.Conn) *client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[videoID] == nil {
		h.clients[videoID] = make(map[*websocket.Conn]*client)
	}
	c := &client{conn: conn}
	h.clients[videoID][conn] = c
	logger.Debug("WS", "Client registered for video %s (total: %d)", videoID, len(h.clients[videoID]))
	return c
}

// Unregister removes a connection for a specific video
func (h *AnalysisHub) Unregister(videoID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[videoID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, videoID)
		}
		logger.Debug("WS", "Client unregistered for video %s", videoID)
	}
}

// HasClients returns true if there are any clients connected for a video
func (h *AnalysisHub) HasClients(videoID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.clients[videoID]
	return ok && len(conns) > 0
}

// Broadcast sends a message to all clients following a video
func (h *AnalysisHub) Broadcast(videoID string, message []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[videoID]))
	for _, c := range h.clients[videoID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(websocket.TextMessage, message); err != nil {
			logger.Warn("WS", "Error sending to client: %v", err)
			h.Unregister(videoID, c.conn)
			c.conn.Close()
		}
	}
}

// OnEvent implements pipeline.EventHandler. Events are routed by their label,
// which the video service sets to the video id.
func (h *AnalysisHub) OnEvent(e *pipeline.Event) {
	if !h.HasClients(e.Label) {
		return
	}

	msg := NewProgressMessage(e)
	if msg == nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("WS", "Error marshaling progress message: %v", err)
		return
	}
	h.Broadcast(e.Label, data)
}

// ClientCount returns the total number of connected clients
func (h *AnalysisHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

var _ pipeline.EventHandler = (*AnalysisHub)(nil)
