package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/postpulse/api/internal/repository"
	"github.com/postpulse/api/internal/service"
)

type EngagementHandler struct {
	s service.EngagementService
}

func NewEngagementHandler(s service.EngagementService) *EngagementHandler {
	return &EngagementHandler{s: s}
}

func (h *EngagementHandler) GetSummary(c *fiber.Ctx) error {
	pubID := c.Params("id")

	snap, err := h.s.GetEngagementSummary(c.Context(), pubID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No engagement data",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to load engagement summary",
		})
	}

	return c.Status(fiber.StatusOK).JSON(snap)
}

func (h *EngagementHandler) GetHistory(c *fiber.Ctx) error {
	pubID := c.Params("id")
	limit := c.QueryInt("limit", 50)

	snaps, err := h.s.GetMetricsHistory(c.Context(), pubID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to load metrics history",
		})
	}

	return c.Status(fiber.StatusOK).JSON(snaps)
}

// CollectNow forces an immediate metrics pull instead of waiting for the
// poll sweep.
func (h *EngagementHandler) CollectNow(c *fiber.Ctx) error {
	pubID := c.Params("id")

	snap, err := h.s.CollectNow(c.Context(), pubID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Publication not found or not yet published",
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(snap)
}
