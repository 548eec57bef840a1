package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/signal-insights/backend/internal/similarity"
	"github.com/signal-insights/backend/pkg/logger"
)

type EmailHandler struct {
	finder  *similarity.Finder
	indexer *similarity.Indexer
}

func NewEmailHandler(finder *similarity.Finder, indexer *similarity.Indexer) *EmailHandler {
	return &EmailHandler{
		finder:  finder,
		indexer: indexer,
	}
}

func (h *EmailHandler) Similar(c *fiber.Ctx) error {
	emailID := strings.TrimSpace(c.Params("email_id"))
	if emailID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email_id is required",
		})
	}

	return c.JSON(fiber.Map{
		"similar": h.finder.Similar(c.UserContext(), emailID),
	})
}

func (h *EmailHandler) IndexAll(c *fiber.Ctx) error {
	result, err := h.indexer.IndexAll(c.UserContext())
	if err != nil {
		logger.Error("Failed to index emails", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to index emails",
		})
	}
	return c.JSON(result)
}
