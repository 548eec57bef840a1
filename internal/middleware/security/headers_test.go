package security

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestHeadersMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		cfg      HeadersConfig
		wantHSTS bool
	}{
		{"production", HeadersConfig{AllowedOrigins: []string{"https://dash.example.com"}}, true},
		{"development", HeadersConfig{AllowedOrigins: []string{"*"}, IsDevelopment: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(HeadersMiddleware(tt.cfg))
			app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}

			if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
				t.Errorf("X-Frame-Options = %q", got)
			}
			if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q", got)
			}
			if hsts := resp.Header.Get("Strict-Transport-Security") != ""; hsts != tt.wantHSTS {
				t.Errorf("HSTS present = %v, want %v", hsts, tt.wantHSTS)
			}
			csp := resp.Header.Get("Content-Security-Policy")
			if strings.Contains(csp, "*") {
				t.Errorf("CSP must not carry wildcard origins: %q", csp)
			}
		})
	}

	t.Run("connect-src lists origins", func(t *testing.T) {
		if got := connectSrc([]string{"https://a.io", " ", "https://b.io"}); got != " https://a.io https://b.io" {
			t.Errorf("connectSrc = %q", got)
		}
	})
}
