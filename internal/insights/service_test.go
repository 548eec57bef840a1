package insights

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/internal/storage/sqlite"
)

func TestCollect(t *testing.T) {
	ctx := context.Background()

	store, err := sqlite.NewClient(":memory:")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer store.Close()
	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}

	ts := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	records := []models.Record{
		&models.Ticket{TicketID: "t1", Content: "login fails", Status: "open", UserID: "u1", CreatedAt: ts},
		&models.DiscordMessage{MessageID: "m1", ChannelID: "general", Content: "hi", AuthorID: "a1", CreatedAt: ts},
		&models.GitHubIssue{IssueID: 12, Repo: "acme/app", Title: "Crash", Body: "stack trace", State: "open", CreatedAt: ts},
		&models.Email{EmailID: "e1", Subject: "Invoice", Body: "attached", Sender: "cfo@acme.io", ReceivedAt: ts},
		&models.TwitterPost{TweetID: "x1", Content: "nice", Author: "@bob", CreatedAt: ts},
		&models.ForumPost{PostID: "p1", Forum: "help", Title: "Q", Content: "how?", Author: "carol", CreatedAt: ts},
	}
	for _, rec := range records {
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %s: %v", rec.Source(), err)
		}
	}

	svc := NewService(store)
	svc.newID = func() string { return "run-1" }

	report, err := svc.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.TotalEvents != 6 || !report.Persisted || report.PersistedCount != 6 || report.RunID != "run-1" {
		t.Errorf("report = %d events, persisted %v/%d, run %q", report.TotalEvents, report.Persisted, report.PersistedCount, report.RunID)
	}

	bySource := make(map[models.Source]models.InsightEvent)
	for _, ev := range report.Events {
		bySource[ev.Source] = ev
	}
	for _, src := range models.AllSources {
		if _, ok := bySource[src]; !ok {
			t.Errorf("no event for %s", src)
		}
	}

	if ev := bySource[models.SourceTickets]; ev.Status != "open" || ev.UserID != "u1" || ev.ID != "t1" {
		t.Errorf("ticket event = %+v", ev)
	}
	if ev := bySource[models.SourceGitHub]; ev.ID != "12" {
		t.Errorf("issue id = %q", ev.ID)
	}

	extrasTests := []struct {
		source models.Source
		want   map[string]string
	}{
		{models.SourceTickets, map[string]string{"status": "open", "user_id": "u1"}},
		{models.SourceEmail, map[string]string{"subject": "Invoice", "sender": "cfo@acme.io"}},
		{models.SourceGitHub, map[string]string{"repo": "acme/app", "title": "Crash", "state": "open"}},
	}
	for _, tt := range extrasTests {
		t.Run(string(tt.source)+" extras", func(t *testing.T) {
			var got map[string]string
			if err := json.Unmarshal([]byte(bySource[tt.source].Extras), &got); err != nil {
				t.Fatalf("extras: %v", err)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("extras[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}

	n, err := store.CountEvents(ctx, "run-1")
	if err != nil || n != 6 {
		t.Errorf("CountEvents = %d, %v; want 6", n, err)
	}
}

func TestCollect_Empty(t *testing.T) {
	store, err := sqlite.NewClient(":memory:")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer store.Close()
	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}

	report, err := NewService(store).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Events == nil || report.TotalEvents != 0 || !report.Persisted || report.PersistedCount != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.RunID == "" {
		t.Error("run id should be generated")
	}
}
