package handlers

import (
	"errors"
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/postpulse/api/internal/repository"
	"github.com/postpulse/api/internal/service"
	"github.com/postpulse/api/internal/transfer"
)

type PublicationHandler struct {
	s     service.PublicationService
	media *service.MediaService
}

func NewPublicationHandler(s service.PublicationService, media *service.MediaService) *PublicationHandler {
	return &PublicationHandler{s: s, media: media}
}

// CreatePublication accepts either a JSON body with a media_url or a
// multipart form with an uploaded file.
func (h *PublicationHandler) CreatePublication(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var pc transfer.PublicationCreation
	if err := c.BodyParser(&pc); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	if file, err := c.FormFile("file"); err == nil && file != nil {
		content, err := file.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to read file",
			})
		}
		defer content.Close()

		data, err := io.ReadAll(content)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to read file",
			})
		}

		mediaURL, err := h.media.Upload(c.Context(), data)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		pc.MediaURL = mediaURL
	}

	pub, err := h.s.Create(c.Context(), userID, &pc)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(pub)
}

func (h *PublicationHandler) ListPublications(c *fiber.Ctx) error {
	userID := GetUserID(c)
	pubID := c.Query("id")

	if pubID != "" {
		pub, err := h.s.Info(c.Context(), userID, pubID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Publication not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Unable to load publication",
			})
		}
		return c.Status(fiber.StatusOK).JSON(pub)
	}

	pubs, err := h.s.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list publications",
		})
	}
	return c.Status(fiber.StatusOK).JSON(pubs)
}

func (h *PublicationHandler) CancelPublication(c *fiber.Ctx) error {
	userID := GetUserID(c)
	pubID := c.Query("id")

	pub, err := h.s.Cancel(c.Context(), userID, pubID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Publication not found",
			})
		}
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(pub)
}
