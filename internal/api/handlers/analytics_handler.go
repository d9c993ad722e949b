package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/postpulse/api/internal/service"
)

type AnalyticsHandler struct {
	s service.AnalyticsService
}

func NewAnalyticsHandler(s service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{s: s}
}

func (h *AnalyticsHandler) BestPostingTimes(c *fiber.Ctx) error {
	times, err := h.s.CalculateBestPostingTimes(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to calculate posting times",
		})
	}
	return c.Status(fiber.StatusOK).JSON(times)
}

func (h *AnalyticsHandler) OptimalSchedule(c *fiber.Ctx) error {
	postsPerDay := c.QueryInt("posts_per_day", 3)

	slots, err := h.s.GetOptimalSchedule(c.Context(), postsPerDay)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to build schedule",
		})
	}
	return c.Status(fiber.StatusOK).JSON(slots)
}

func (h *AnalyticsHandler) PostPerformance(c *fiber.Ctx) error {
	tokenID := int64(c.QueryInt("social_token_id", 0))
	n := c.QueryInt("count", 10)

	if tokenID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "social_token_id is required",
		})
	}

	perf, err := h.s.AnalyzePostPerformance(c.Context(), tokenID, n)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(perf)
}
