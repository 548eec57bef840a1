package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/signal-insights/backend/internal/insights"
	"github.com/signal-insights/backend/pkg/logger"
)

type InsightsHandler struct {
	service *insights.Service
}

func NewInsightsHandler(service *insights.Service) *InsightsHandler {
	return &InsightsHandler{
		service: service,
	}
}

func (h *InsightsHandler) GetInsights(c *fiber.Ctx) error {
	report, err := h.service.Collect(c.UserContext())
	if err != nil {
		logger.Error("Failed to collect insights", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to collect insights",
		})
	}

	return c.JSON(report)
}
