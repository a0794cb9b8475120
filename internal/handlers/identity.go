package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"devscope/internal/models"
	"devscope/internal/monitor"
	"devscope/internal/settings"
)

// IdentityHandler manages the attribution used for Hive Mind uploads.
type IdentityHandler struct {
	monitor *monitor.Monitor
	store   *settings.Store
}

// NewIdentityHandler creates a new identity handler.
func NewIdentityHandler(mon *monitor.Monitor, store *settings.Store) *IdentityHandler {
	return &IdentityHandler{monitor: mon, store: store}
}

// Get returns the current identity.
func (h *IdentityHandler) Get(c *fiber.Ctx) error {
	return c.JSON(h.monitor.Identity())
}

type identityRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	OrgID       string `json:"org_id"`
}

// Update replaces the identity. It applies from the next capture tick;
// already-buffered records keep the identity they were captured under.
func (h *IdentityHandler) Update(c *fiber.Ctx) error {
	var req identityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.UserID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	identity := models.Identity{
		UserID:      strings.TrimSpace(req.UserID),
		DisplayName: strings.TrimSpace(req.DisplayName),
		OrgID:       strings.TrimSpace(req.OrgID),
	}
	h.monitor.SetIdentity(identity)

	if h.store != nil {
		if err := h.store.SaveIdentity(identity); err != nil {
			log.Printf("[IDENTITY] Failed to persist identity: %v", err)
		}
	}
	return c.JSON(identity)
}
