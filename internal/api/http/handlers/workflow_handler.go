package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-tracker/internal/workflow"
)

// WorkflowHandler publishes the status transition table.
type WorkflowHandler struct {
	engine *workflow.Engine
}

// NewWorkflowHandler constructs handler.
func NewWorkflowHandler(engine *workflow.Engine) *WorkflowHandler {
	return &WorkflowHandler{engine: engine}
}

// Table handles GET /api/workflow.
func (h *WorkflowHandler) Table(c *fiber.Ctx) error {
	table := h.engine.Table()
	out := make(map[string][]string, len(table))
	for from, targets := range table {
		names := make([]string, 0, len(targets))
		for _, to := range targets {
			names = append(names, string(to))
		}
		out[string(from)] = names
	}
	return c.JSON(out)
}
