package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"devscope/internal/database"
	"devscope/internal/monitor"
	"devscope/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	hive    *database.HiveMind
	monitor *monitor.Monitor
	stream  *services.StreamManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(hive *database.HiveMind, mon *monitor.Monitor, stream *services.StreamManager) *HealthHandler {
	return &HealthHandler{hive: hive, monitor: mon, stream: stream}
}

// Handle responds with daemon health status. Hive Mind health is the cached
// state; this endpoint never dials MongoDB.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":             "healthy",
		"monitor_running":    h.monitor.IsRunning(),
		"active_session":     h.monitor.ActiveSessionID(),
		"hive_mind":          h.hive.Health().String(),
		"stream_subscribers": h.stream.Count(),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}
