package handlers

import (
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"devscope/internal/models"
	"devscope/internal/services"
)

// StreamHandler pushes every new activity record to connected WebSocket
// clients. The stream is broadcast-only; inbound messages are drained solely
// to detect disconnects.
type StreamHandler struct {
	stream *services.StreamManager
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(stream *services.StreamManager) *StreamHandler {
	return &StreamHandler{stream: stream}
}

// Handle serves one WebSocket subscriber.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	connID := uuid.New().String()
	done := make(chan struct{})

	conn := &services.StreamConn{
		ID:        connID,
		WriteChan: make(chan models.ActivityRecord, 100),
	}
	h.stream.Add(conn)
	defer func() {
		close(done)
		h.stream.Remove(connID)
	}()

	c.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	go h.pingLoop(c, connID, done)
	go h.writeLoop(c, conn)

	// Read loop: clients send nothing meaningful, but reading is how we
	// notice the peer going away.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			log.Printf("[STREAM] Read error for %s: %v", connID, err)
			return
		}
		c.SetReadDeadline(time.Now().Add(90 * time.Second))
	}
}

func (h *StreamHandler) pingLoop(c *websocket.Conn, connID string, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				log.Printf("[STREAM] Ping failed for %s: %v", connID, err)
				return
			}
		}
	}
}

func (h *StreamHandler) writeLoop(c *websocket.Conn, conn *services.StreamConn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[STREAM] Panic in writeLoop: %v", r)
		}
	}()

	for record := range conn.WriteChan {
		if err := c.WriteJSON(record); err != nil {
			log.Printf("[STREAM] Write error for %s: %v", conn.ID, err)
			return
		}
	}
}
