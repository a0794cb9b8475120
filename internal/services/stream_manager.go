package services

import (
	"log"
	"sync"

	"devscope/internal/models"
)

// StreamConn is one live activity-stream subscriber. Records are fanned out
// through WriteChan; a subscriber that cannot drain its channel gets records
// dropped rather than stalling the capture loop.
type StreamConn struct {
	ID        string
	WriteChan chan models.ActivityRecord
}

// StreamManager tracks activity-stream WebSocket subscribers and broadcasts
// each new record to all of them.
type StreamManager struct {
	mu          sync.RWMutex
	connections map[string]*StreamConn
}

// NewStreamManager creates an empty manager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		connections: make(map[string]*StreamConn),
	}
}

// Add registers a subscriber.
func (sm *StreamManager) Add(conn *StreamConn) {
	sm.mu.Lock()
	sm.connections[conn.ID] = conn
	total := len(sm.connections)
	sm.mu.Unlock()

	if mt := GetMetrics(); mt != nil {
		mt.StreamConnections.Inc()
	}
	log.Printf("[STREAM] Subscriber added: %s (total: %d)", conn.ID, total)
}

// Remove unregisters a subscriber and closes its channel. Unknown ids are a
// no-op, so disconnect paths can call this unconditionally.
func (sm *StreamManager) Remove(id string) {
	sm.mu.Lock()
	conn, exists := sm.connections[id]
	if exists {
		close(conn.WriteChan)
		delete(sm.connections, id)
	}
	total := len(sm.connections)
	sm.mu.Unlock()

	if !exists {
		return
	}
	if mt := GetMetrics(); mt != nil {
		mt.StreamConnections.Dec()
	}
	log.Printf("[STREAM] Subscriber removed: %s (total: %d)", id, total)
}

// Count returns the number of active subscribers.
func (sm *StreamManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.connections)
}

// Broadcast fans a record out to every subscriber without blocking. Slow
// consumers lose records; the stream is a live view, not a durable feed.
func (sm *StreamManager) Broadcast(record models.ActivityRecord) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, conn := range sm.connections {
		select {
		case conn.WriteChan <- record:
		default:
		}
	}
}
