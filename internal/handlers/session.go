package handlers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"devscope/internal/models"
	"devscope/internal/monitor"
	"devscope/internal/settings"
)

// SessionHandler handles session CRUD and activation.
type SessionHandler struct {
	monitor *monitor.Monitor
	store   *settings.Store

	// OnActivate fires after a session becomes active, with its metadata.
	// Used to re-point the git trigger at the new repository.
	OnActivate func(models.SessionMetadata)
	// OnDelete fires after a session is removed.
	OnDelete func(sessionID string)
}

// NewSessionHandler creates a new session handler. store may be nil when
// persistence is disabled.
func NewSessionHandler(mon *monitor.Monitor, store *settings.Store) *SessionHandler {
	return &SessionHandler{monitor: mon, store: store}
}

type createSessionRequest struct {
	ProjectName string `json:"project_name"`
	RepoPath    string `json:"repo_path"`
	Goal        string `json:"goal"`
}

// List returns all sessions with their active flag.
func (h *SessionHandler) List(c *fiber.Ctx) error {
	sessions := h.monitor.ListSessions()
	return c.JSON(fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Create registers a new tracked session.
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.ProjectName) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "project_name is required",
		})
	}

	meta, err := h.monitor.CreateSession(req.ProjectName, req.RepoPath, req.Goal)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if h.store != nil {
		if err := h.store.SaveSession(settings.SavedSession{
			ID:          meta.ID,
			ProjectName: meta.ProjectName,
			RepoPath:    meta.RepoPath,
			Goal:        meta.Goal,
		}); err != nil {
			log.Printf("[SESSION] Failed to persist session %s: %v", meta.ID, err)
		}
	}

	if meta.Active && h.OnActivate != nil {
		h.OnActivate(meta)
	}
	return c.Status(fiber.StatusCreated).JSON(meta)
}

// Activate switches the active session.
func (h *SessionHandler) Activate(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.monitor.SwitchSession(id); err != nil {
		if errors.Is(err, monitor.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if h.OnActivate != nil {
		if meta, ok := h.metaFor(id); ok {
			h.OnActivate(meta)
		}
	}
	return c.JSON(fiber.Map{
		"active_session": id,
	})
}

// Delete removes a session; unknown ids succeed quietly so retries are safe.
func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	h.monitor.DeleteSession(id)

	if h.store != nil {
		if err := h.store.DeleteSession(id); err != nil {
			log.Printf("[SESSION] Failed to remove persisted session %s: %v", id, err)
		}
	}
	if h.OnDelete != nil {
		h.OnDelete(id)
	}
	return c.JSON(fiber.Map{
		"deleted": id,
	})
}

func (h *SessionHandler) metaFor(id string) (models.SessionMetadata, bool) {
	s, ok := h.monitor.GetSession(id)
	if !ok {
		return models.SessionMetadata{}, false
	}
	return models.SessionMetadata{
		ID:          s.ID,
		ProjectName: s.ProjectName,
		ProjectSlug: s.ProjectSlug,
		Goal:        s.Goal,
		RepoPath:    s.RepoPath,
		Active:      true,
	}, true
}
