package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/signal-insights/backend/internal/analysis"
	"github.com/signal-insights/backend/internal/api/handlers"
	"github.com/signal-insights/backend/internal/ingestion"
	"github.com/signal-insights/backend/internal/insights"
	"github.com/signal-insights/backend/internal/metrics"
	"github.com/signal-insights/backend/internal/middleware/ratelimit"
	"github.com/signal-insights/backend/internal/middleware/security"
	"github.com/signal-insights/backend/internal/middleware/validation"
	"github.com/signal-insights/backend/internal/similarity"
	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/internal/storage/sqlite"
	"github.com/signal-insights/backend/pkg/config"
	"github.com/signal-insights/backend/pkg/logger"
)

// Services are the collaborators the HTTP surface dispatches to.
type Services struct {
	Store     *sqlite.Client
	Processor *ingestion.Processor
	Analysis  *analysis.Service
	Finder    *similarity.Finder
	Indexer   *similarity.Indexer
	Insights  *insights.Service
}

// NewApp builds the fiber application. The returned stop func releases
// middleware resources and must be called after shutdown.
func NewApp(cfg *config.Config, svc Services) (*fiber.App, func()) {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	if cfg.Server.IsDevelopment {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: joinOrigins(cfg.Server.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.IsDevelopment,
	}))
	app.Use(validation.Middleware(validation.Config{
		MaxBodySize: cfg.Server.BodyLimit,
		Logger:      logger.GetLogger(),
	}))

	stop := func() {}
	if cfg.RateLimit.Enabled {
		rl := ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
			Burst:                cfg.RateLimit.Burst,
			Logger:               logger.GetLogger(),
		})
		app.Use("/api", rl.Middleware())
		stop = rl.Stop
	}

	collectHandler := handlers.NewCollectHandler(svc.Processor, svc.Store)
	analysisHandler := handlers.NewAnalysisHandler(svc.Analysis)
	emailHandler := handlers.NewEmailHandler(svc.Finder, svc.Indexer)
	insightsHandler := handlers.NewInsightsHandler(svc.Insights)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if err := svc.Store.Ping(c.UserContext()); err != nil {
			logger.Warn("Readiness check failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	api.Post("/collect/:source", collectHandler.Collect)
	api.Get("/stats/daily", collectHandler.DailyStats)

	api.Get("/tickets/analysis", analysisHandler.Tickets)
	api.Get("/github/analysis", analysisHandler.GitHub)
	api.Get("/discord/analysis", analysisHandler.Discord)
	api.Get("/email/analysis", analysisHandler.Email)
	api.Get("/twitter/features", analysisHandler.TwitterFeatures)
	api.Get("/twitter/overall-sentiment", analysisHandler.TwitterSentiment)
	api.Get("/forum/analysis", analysisHandler.Forum)

	api.Get("/email/similar/:email_id", emailHandler.Similar)
	api.Post("/email/index-all", emailHandler.IndexAll)

	api.Get("/insights", insightsHandler.GetInsights)

	for _, src := range models.AllSources {
		api.Get("/"+string(src), collectHandler.List(src))
	}

	return app, stop
}

func joinOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ", ")
}
