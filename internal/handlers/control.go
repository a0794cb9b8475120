package handlers

import (
	"github.com/gofiber/fiber/v2"

	"devscope/internal/monitor"
	"devscope/internal/summarizer"
)

// ControlHandler starts and stops the capture worker and triggers on-demand
// standup summaries.
type ControlHandler struct {
	monitor    *monitor.Monitor
	summarizer *summarizer.Summarizer
}

// NewControlHandler creates a new control handler. summarizer may be nil.
func NewControlHandler(mon *monitor.Monitor, sum *summarizer.Summarizer) *ControlHandler {
	return &ControlHandler{monitor: mon, summarizer: sum}
}

// Start launches the capture worker.
func (h *ControlHandler) Start(c *fiber.Ctx) error {
	h.monitor.Start()
	return c.JSON(fiber.Map{"running": true})
}

// Stop halts the capture worker.
func (h *ControlHandler) Stop(c *fiber.Ctx) error {
	h.monitor.Stop()
	return c.JSON(fiber.Map{"running": false})
}

// Status reports the worker state.
func (h *ControlHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"running":        h.monitor.IsRunning(),
		"active_session": h.monitor.ActiveSessionID(),
	})
}

// Summarize runs one standup summary immediately instead of waiting for the
// next scheduled window.
func (h *ControlHandler) Summarize(c *fiber.Ctx) error {
	if h.summarizer == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Summarizer is not configured",
		})
	}
	go h.summarizer.RunOnce()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"scheduled": true,
	})
}
