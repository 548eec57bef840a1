package validation

import (
	"bytes"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxBodySize         int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects write requests whose body is not a JSON object before
// they reach a handler. Field-level checks happen at ingestion.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		body := bytes.TrimSpace(c.Body())
		if len(body) == 0 {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if !allowedType(contentType, cfg.AllowedContentTypes) {
			cfg.Logger.Debug("Rejected content type",
				zap.String("content_type", contentType),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		if len(body) > cfg.MaxBodySize {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Request body exceeds maximum size",
			})
		}

		if body[0] != '{' {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Request body must be a JSON object",
			})
		}

		if bytes.IndexByte(body, 0) >= 0 {
			cfg.Logger.Warn("Request body contains NUL bytes", zap.String("ip", c.IP()))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		return c.Next()
	}
}

func allowedType(contentType string, allowed []string) bool {
	contentType = strings.ToLower(contentType)
	for _, a := range allowed {
		if strings.Contains(contentType, a) {
			return true
		}
	}
	return false
}
