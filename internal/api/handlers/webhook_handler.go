package handlers

import (
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/service"
	"github.com/postpulse/api/internal/transfer"
)

// WebhookHandler receives provider metric pushes. Signature verification
// happens upstream; this handler only unwraps and ingests. Provider pushes
// are at-least-once, so any event that cannot be resolved is acknowledged
// and dropped rather than retried.
type WebhookHandler struct {
	s service.EngagementService
}

func NewWebhookHandler(s service.EngagementService) *WebhookHandler {
	return &WebhookHandler{s: s}
}

func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	providerName := c.Params("provider")

	var events []*transfer.WebhookEvent
	switch providerName {
	case models.ProviderInstagram:
		var payload transfer.InstagramWebhook
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			slog.Warn("malformed instagram webhook", "error", err)
			return c.SendStatus(fiber.StatusBadRequest)
		}
		events = payload.Events()
	case models.ProviderTwitter:
		var payload transfer.TwitterWebhook
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			slog.Warn("malformed twitter webhook", "error", err)
			return c.SendStatus(fiber.StatusBadRequest)
		}
		if event := payload.Event(); event != nil {
			events = append(events, event)
		}
	default:
		return c.SendStatus(fiber.StatusNotFound)
	}

	for _, event := range events {
		if err := h.s.IngestWebhook(c.Context(), providerName, event); err != nil {
			slog.Error("webhook ingestion", "provider", providerName, "error", err)
		}
	}

	// Always acknowledge; providers disable endpoints that keep failing.
	return c.SendStatus(fiber.StatusOK)
}
