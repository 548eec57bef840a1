package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/signal-insights/backend/internal/analysis"
	"github.com/signal-insights/backend/internal/ingestion"
	"github.com/signal-insights/backend/internal/insights"
	"github.com/signal-insights/backend/internal/llm"
	"github.com/signal-insights/backend/internal/similarity"
	"github.com/signal-insights/backend/internal/storage/sqlite"
	"github.com/signal-insights/backend/pkg/config"
)

type malformedCompleter struct{}

func (malformedCompleter) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: "Sure! Here are the categories: Billing, API"}, nil
}

var testDay = time.Date(2024, 7, 15, 9, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) (*fiber.App, *sqlite.Client) {
	t.Helper()

	store, err := sqlite.NewClient(":memory:")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	store.SetClock(func() time.Time { return testDay })

	cfg := config.Default()
	cfg.RateLimit.Enabled = false

	svc := analysis.NewService(store, malformedCompleter{}, cfg.Analysis)
	svc.SetClock(func() time.Time { return testDay })

	app, stop := NewApp(cfg, Services{
		Store:     store,
		Processor: ingestion.NewProcessor(store),
		Analysis:  svc,
		Finder:    similarity.NewFinder(nil, store, cfg.Analysis.SimilarTopK),
		Indexer:   similarity.NewIndexer(store, nil, nil, nil),
		Insights:  insights.NewService(store),
	})
	t.Cleanup(stop)
	return app, store
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func TestTicketsEndToEnd(t *testing.T) {
	app, store := newTestApp(t)

	for _, id := range []string{"t1", "t2", "t3"} {
		body := `{"ticket_id":"` + id + `","content":"Checkout keeps failing","status":"open","user_id":"u1","created_at":"2024-07-15T08:00:00Z"}`
		code, resp := do(t, app, http.MethodPost, "/api/collect/tickets", body)
		if code != http.StatusOK {
			t.Fatalf("collect %s = %d %s", id, code, resp)
		}
	}

	day, err := store.DailyCount(context.Background(), "2024-07-15")
	if err != nil {
		t.Fatalf("DailyCount: %v", err)
	}
	if day.TotalTickets != 3 {
		t.Errorf("ticket counter = %d, want 3", day.TotalTickets)
	}

	code, body := do(t, app, http.MethodGet, "/api/tickets", "")
	if code != http.StatusOK {
		t.Fatalf("list = %d", code)
	}
	var listed []map[string]any
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 3 {
		t.Errorf("listed %d tickets, want 3", len(listed))
	}

	code, body = do(t, app, http.MethodGet, "/api/tickets/analysis", "")
	if code != http.StatusOK {
		t.Fatalf("analysis = %d %s", code, body)
	}
	var report analysis.CategoryReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.Categories) != 1 {
		t.Fatalf("categories = %+v", report.Categories)
	}
	if c := report.Categories[0]; c.Name != analysis.FallbackCategory || c.Count != 3 || c.Percentage != 100 {
		t.Errorf("category = %+v", c)
	}
	if report.Advice == "" || len(report.Timeline) != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestCollectErrors(t *testing.T) {
	app, _ := newTestApp(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown source", "/api/collect/slack", `{"id":"1"}`, http.StatusNotFound},
		{"missing fields", "/api/collect/email", `{"email_id":"e1"}`, http.StatusBadRequest},
		{"bad json", "/api/collect/tickets", `{"ticket_id":`, http.StatusBadRequest},
		{"issue id zero", "/api/collect/github", `{"issue_id":0,"repo":"r","title":"t","body":"b","state":"open"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := do(t, app, http.MethodPost, tt.path, tt.body); code != tt.want {
				t.Errorf("status = %d, want %d (%s)", code, tt.want, body)
			}
		})
	}

	t.Run("duplicate", func(t *testing.T) {
		body := `{"tweet_id":"x1","content":"hi","author":"a"}`
		if code, _ := do(t, app, http.MethodPost, "/api/collect/twitter", body); code != http.StatusOK {
			t.Fatalf("first insert = %d", code)
		}
		if code, _ := do(t, app, http.MethodPost, "/api/collect/twitter", body); code != http.StatusConflict {
			t.Errorf("second insert = %d, want 409", code)
		}
	})
}

func TestEmptyStates(t *testing.T) {
	app, _ := newTestApp(t)

	for _, path := range []string{"/api/tickets", "/api/discord", "/api/github", "/api/email", "/api/twitter", "/api/forum"} {
		t.Run(path, func(t *testing.T) {
			code, body := do(t, app, http.MethodGet, path, "")
			if code != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
				t.Errorf("%s = %d %s, want empty array", path, code, body)
			}
		})
	}

	t.Run("similar without vector index", func(t *testing.T) {
		code, body := do(t, app, http.MethodGet, "/api/email/similar/e404", "")
		if code != http.StatusOK || !strings.Contains(string(body), `"similar":[]`) {
			t.Errorf("similar = %d %s", code, body)
		}
	})

	t.Run("index all with nothing to index", func(t *testing.T) {
		code, body := do(t, app, http.MethodPost, "/api/email/index-all", "")
		var res similarity.IndexResult
		if err := json.Unmarshal(body, &res); err != nil || code != http.StatusOK {
			t.Fatalf("index-all = %d %s", code, body)
		}
		if !res.Success || res.Indexed != 0 || res.Errors != 0 {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("forum analysis", func(t *testing.T) {
		code, body := do(t, app, http.MethodGet, "/api/forum/analysis", "")
		if code != http.StatusOK || !strings.Contains(string(body), `"forums":[]`) {
			t.Errorf("forum = %d %s", code, body)
		}
	})
}

func TestInsightsAndStats(t *testing.T) {
	app, _ := newTestApp(t)

	do(t, app, http.MethodPost, "/api/collect/discord", `{"message_id":"m1","channel_id":"c1","content":"hello","author_id":"a1"}`)
	do(t, app, http.MethodPost, "/api/collect/forum", `{"post_id":"p1","forum":"help","title":"Q","content":"how?","author":"b"}`)

	code, body := do(t, app, http.MethodGet, "/api/insights", "")
	if code != http.StatusOK {
		t.Fatalf("insights = %d %s", code, body)
	}
	var out struct {
		TotalEvents int              `json:"total_events"`
		Persisted   bool             `json:"persisted"`
		Events      []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.TotalEvents != 2 || !out.Persisted || len(out.Events) != 2 {
		t.Fatalf("insights = %s", body)
	}
	for _, ev := range out.Events {
		for _, key := range []string{"source", "id", "content", "status", "user_id", "created_at", "extras"} {
			if _, ok := ev[key].(string); !ok {
				t.Errorf("%v event: %q missing or not a string", ev["source"], key)
			}
		}
	}

	code, body = do(t, app, http.MethodGet, "/api/stats/daily?days=7", "")
	if code != http.StatusOK {
		t.Fatalf("stats = %d %s", code, body)
	}
	var stats struct {
		Days   []map[string]any `json:"days"`
		Totals map[string]int   `json:"totals"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(stats.Days) != 1 || stats.Totals["discord"] != 1 || stats.Totals["forum"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if code, _ := do(t, app, http.MethodGet, "/api/stats/daily?days=0", ""); code != http.StatusBadRequest {
		t.Errorf("days=0 = %d, want 400", code)
	}
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)

	for _, path := range []string{"/api/health", "/api/ready"} {
		if code, body := do(t, app, http.MethodGet, path, ""); code != http.StatusOK {
			t.Errorf("%s = %d %s", path, code, body)
		}
	}
}
