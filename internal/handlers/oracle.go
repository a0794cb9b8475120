package handlers

import (
	"github.com/gofiber/fiber/v2"

	"devscope/internal/oracle"
)

// OracleHandler answers team-history questions.
type OracleHandler struct {
	oracle *oracle.Oracle
}

// NewOracleHandler creates a new oracle handler.
func NewOracleHandler(o *oracle.Oracle) *OracleHandler {
	return &OracleHandler{oracle: o}
}

type askRequest struct {
	Question    string `json:"question"`
	Scope       string `json:"scope"`
	ProjectName string `json:"project_name"`
	OrgID       string `json:"org_id"`
	HoursBack   int    `json:"hours_back"`
}

// Ask runs one Oracle query. The Oracle never errors; degraded situations
// come back as descriptive answers with a 200.
func (h *OracleHandler) Ask(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result := h.oracle.Ask(c.Context(), req.Question, oracle.AskOptions{
		Scope:       req.Scope,
		ProjectName: req.ProjectName,
		OrgID:       req.OrgID,
		HoursBack:   req.HoursBack,
	})
	return c.JSON(result)
}
