package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/signal-insights/backend/internal/analysis"
	"github.com/signal-insights/backend/pkg/logger"
)

type AnalysisHandler struct {
	service *analysis.Service
}

func NewAnalysisHandler(service *analysis.Service) *AnalysisHandler {
	return &AnalysisHandler{
		service: service,
	}
}

func (h *AnalysisHandler) Tickets(c *fiber.Ctx) error {
	report, err := h.service.Tickets(c.UserContext())
	return respond(c, "tickets", report, err)
}

func (h *AnalysisHandler) GitHub(c *fiber.Ctx) error {
	report, err := h.service.GitHub(c.UserContext())
	return respond(c, "github", report, err)
}

func (h *AnalysisHandler) Discord(c *fiber.Ctx) error {
	report, err := h.service.Discord(c.UserContext())
	return respond(c, "discord", report, err)
}

func (h *AnalysisHandler) Email(c *fiber.Ctx) error {
	report, err := h.service.Email(c.UserContext())
	return respond(c, "email", report, err)
}

func (h *AnalysisHandler) TwitterFeatures(c *fiber.Ctx) error {
	days := c.QueryInt("days", 90)
	if days <= 0 || days > 3650 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "days must be between 1 and 3650",
		})
	}

	report, err := h.service.TwitterFeatures(c.UserContext(), days)
	return respond(c, "twitter.features", report, err)
}

func (h *AnalysisHandler) TwitterSentiment(c *fiber.Ctx) error {
	report, err := h.service.OverallSentiment(c.UserContext())
	return respond(c, "twitter.overall", report, err)
}

func (h *AnalysisHandler) Forum(c *fiber.Ctx) error {
	report, err := h.service.Forum(c.UserContext())
	return respond(c, "forum", report, err)
}

// respond writes the report, or a 500 for storage failures. Inference
// failures never reach here.
func respond(c *fiber.Ctx, endpoint string, report any, err error) error {
	if err != nil {
		logger.Error("Analysis failed",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to run analysis",
		})
	}
	return c.JSON(report)
}
