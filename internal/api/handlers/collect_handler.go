package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/signal-insights/backend/internal/ingestion"
	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/internal/storage/sqlite"
	"github.com/signal-insights/backend/pkg/logger"
)

type CollectHandler struct {
	processor *ingestion.Processor
	store     *sqlite.Client
}

func NewCollectHandler(processor *ingestion.Processor, store *sqlite.Client) *CollectHandler {
	return &CollectHandler{
		processor: processor,
		store:     store,
	}
}

// Collect ingests one record for the source named in the path.
func (h *CollectHandler) Collect(c *fiber.Ctx) error {
	source, err := models.ParseSource(c.Params("source"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	rec, err := models.NewRecord(source)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := c.BodyParser(rec); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	err = h.processor.Collect(c.UserContext(), rec)

	var verr *ingestion.ValidationError
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"success": true})
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": verr.Fields,
		})
	case errors.Is(err, sqlite.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Record already exists",
			"id":    rec.ExternalID(),
		})
	default:
		logger.Error("Failed to collect record",
			zap.String("source", string(source)),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store record",
		})
	}
}

// List returns every row of a source, newest first.
func (h *CollectHandler) List(source models.Source) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := h.list(c.UserContext(), source)
		if err != nil {
			logger.Error("Failed to list records",
				zap.String("source", string(source)),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list records",
			})
		}
		return c.JSON(rows)
	}
}

func (h *CollectHandler) list(ctx context.Context, source models.Source) (any, error) {
	switch source {
	case models.SourceTickets:
		return h.store.ListTickets(ctx, 0)
	case models.SourceDiscord:
		return h.store.ListDiscordMessages(ctx, 0)
	case models.SourceGitHub:
		return h.store.ListGitHubIssues(ctx, 0)
	case models.SourceEmail:
		return h.store.ListEmails(ctx, 0)
	case models.SourceTwitter:
		return h.store.ListTwitterPosts(ctx, 0)
	case models.SourceForum:
		return h.store.ListForumPosts(ctx, 0)
	}
	return nil, errors.New("unknown source " + string(source))
}

// DailyStats returns the ingestion counters of the last days, newest first.
func (h *CollectHandler) DailyStats(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)
	if days <= 0 || days > 366 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "days must be between 1 and 366",
		})
	}

	counts, err := h.store.DailyCounts(c.UserContext(), days)
	if err != nil {
		logger.Error("Failed to load daily counts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load statistics",
		})
	}

	totals := make(map[models.Source]int64, len(models.AllSources))
	for _, src := range models.AllSources {
		totals[src] = 0
	}
	for _, day := range counts {
		for _, src := range models.AllSources {
			totals[src] += day.Count(src)
		}
	}

	return c.JSON(fiber.Map{
		"days":   counts,
		"totals": totals,
	})
}
