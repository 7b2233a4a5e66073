package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/storage/models"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type RunHistory interface {
	ListRuns(limit int) ([]models.AnalysisRun, error)
}

type HistoryHandler struct {
	runs RunHistory
}

func NewHistoryHandler(runs RunHistory) *HistoryHandler {
	return &HistoryHandler{runs: runs}
}

// GetRunHistory lists recent analysis runs, newest first. ?limit caps the count.
func (h *HistoryHandler) GetRunHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		return badRequest(c, "limit must be positive")
	}
	limit = min(limit, maxHistoryLimit)

	runs, err := h.runs.ListRuns(limit)
	if err != nil {
		return failure(c, "Loading run history", err)
	}
	if runs == nil {
		runs = []models.AnalysisRun{}
	}

	return c.JSON(fiber.Map{
		"history": runs,
	})
}
