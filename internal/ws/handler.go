package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"monuguard/internal/logger"
)

// PathPrefix is where analysis progress sockets are served
const PathPrefix = "/ws/analysis/"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles WebSocket connections for analysis progress
type Handler struct {
	hub *AnalysisHub
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *AnalysisHub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP handles WebSocket upgrade requests
// Expected URL format: /ws/analysis/{video_id}
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	videoID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, PathPrefix), "/")
	if videoID == "" || strings.Contains(videoID, "/") {
		http.Error(w, "video_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WS", "Upgrade error: %v", err)
		return
	}

	logger.Info("WS", "New connection for video %s from %s", videoID, r.RemoteAddr)

	c := h.hub.register(videoID, conn)

	go h.readPump(videoID, c)
}

// readPump keeps the connection alive and detects client disconnection
func (h *Handler) readPump(videoID string, c *client) {
	done := make(chan struct{})
	defer func() {
		close(done)
		h.hub.Unregister(videoID, c.conn)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512) // Small limit since client shouldn't send much
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WS", "Read error for video %s: %v", videoID, err)
			}
			break
		}
	}
}
