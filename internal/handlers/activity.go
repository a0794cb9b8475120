package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"devscope/internal/monitor"
)

// ActivityHandler exposes the in-memory activity buffers.
type ActivityHandler struct {
	monitor *monitor.Monitor
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(mon *monitor.Monitor) *ActivityHandler {
	return &ActivityHandler{monitor: mon}
}

// List returns buffered records for a session (the active one by default).
// With ?minutes=N only privacy-cleared records in the window come back,
// mirroring what commit reports and summaries see.
func (h *ActivityHandler) List(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")
	minutes := c.QueryInt("minutes", 0)

	records := h.monitor.Snapshot(sessionID)
	if minutes > 0 {
		records = h.monitor.RecentWindow(sessionID, time.Duration(minutes)*time.Minute)
	}

	return c.JSON(fiber.Map{
		"records": records,
		"count":   len(records),
	})
}
