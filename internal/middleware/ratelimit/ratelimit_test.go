package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestMiddleware(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 60, Burst: 2})
	defer rl.Stop()

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	get := func(user string) int {
		req := httptest.NewRequest("GET", "/", nil)
		if user != "" {
			req.Header.Set("X-User-ID", user)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	t.Run("burst then reject", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if code := get("alice"); code != fiber.StatusOK {
				t.Fatalf("request %d = %d, want 200", i, code)
			}
		}
		if code := get("alice"); code != fiber.StatusTooManyRequests {
			t.Errorf("third request = %d, want 429", code)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		if code := get("bob"); code != fiber.StatusOK {
			t.Errorf("bob = %d, want 200", code)
		}
	})
}

func TestEvictIdle(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 60})
	defer rl.Stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.allow("old")

	now = now.Add(11 * time.Minute)
	rl.allow("fresh")
	rl.evictIdle()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.clients["old"]; ok {
		t.Error("idle client should be evicted")
	}
	if _, ok := rl.clients["fresh"]; !ok {
		t.Error("active client should be kept")
	}
}
