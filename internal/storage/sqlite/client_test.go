package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signal-insights/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(":memory:")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	c.SetClock(func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) })
	return c
}

func TestInsert_IncrementsCounter(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	ts := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)

	for _, id := range []string{"t1", "t2", "t3"} {
		err := c.Insert(ctx, &models.Ticket{TicketID: id, Content: "help", Status: "open", UserID: "u1", CreatedAt: ts})
		if err != nil {
			t.Fatalf("Insert(%s): %v", id, err)
		}
	}
	if err := c.Insert(ctx, &models.GitHubIssue{IssueID: 7, Repo: "r", Title: "t", Body: "b", State: "open", CreatedAt: ts}); err != nil {
		t.Fatalf("Insert issue: %v", err)
	}

	n, err := c.CountRows(ctx, models.SourceTickets)
	if err != nil || n != 3 {
		t.Fatalf("CountRows = %d, %v; want 3", n, err)
	}

	day, err := c.DailyCount(ctx, "2024-03-10")
	if err != nil {
		t.Fatalf("DailyCount: %v", err)
	}
	if day.TotalTickets != 3 {
		t.Errorf("TotalTickets = %d, want 3", day.TotalTickets)
	}
	if day.TotalIssues != 1 {
		t.Errorf("TotalIssues = %d, want 1", day.TotalIssues)
	}
	if day.TotalEmails != 0 {
		t.Errorf("TotalEmails = %d, want 0", day.TotalEmails)
	}
}

func TestInsert_Duplicate(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	msg := &models.DiscordMessage{MessageID: "m1", ChannelID: "c", Content: "hi", AuthorID: "a", CreatedAt: time.Now()}

	if err := c.Insert(ctx, msg); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := c.Insert(ctx, msg)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}

	day, _ := c.DailyCount(ctx, "2024-03-10")
	if day.TotalDiscord != 1 {
		t.Errorf("failed insert must not bump counter: TotalDiscord = %d", day.TotalDiscord)
	}
}

func TestListing(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty table yields empty slice", func(t *testing.T) {
		posts, err := c.ListForumPosts(ctx, 0)
		if err != nil {
			t.Fatalf("ListForumPosts: %v", err)
		}
		if posts == nil || len(posts) != 0 {
			t.Errorf("posts = %#v, want empty non-nil slice", posts)
		}
	})

	t.Run("ordered by timestamp desc with id tiebreak", func(t *testing.T) {
		inserts := []struct {
			id string
			ts time.Time
		}{
			{"a", base},
			{"b", base.Add(2 * time.Hour)},
			{"c", base.Add(time.Hour)},
			{"d", base.Add(2 * time.Hour)},
		}
		for _, in := range inserts {
			err := c.Insert(ctx, &models.TwitterPost{TweetID: in.id, Content: "x", Author: "y", CreatedAt: in.ts})
			if err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}

		posts, err := c.ListTwitterPosts(ctx, 0)
		if err != nil {
			t.Fatalf("ListTwitterPosts: %v", err)
		}
		want := []string{"d", "b", "c", "a"}
		if len(posts) != len(want) {
			t.Fatalf("len = %d, want %d", len(posts), len(want))
		}
		for i, w := range want {
			if posts[i].TweetID != w {
				t.Errorf("posts[%d] = %s, want %s", i, posts[i].TweetID, w)
			}
		}

		limited, _ := c.ListTwitterPosts(ctx, 2)
		if len(limited) != 2 {
			t.Errorf("limited len = %d, want 2", len(limited))
		}

		since, _ := c.TweetsSince(ctx, base.Add(30*time.Minute), 0)
		if len(since) != 3 || since[0].TweetID != "c" {
			t.Errorf("TweetsSince = %+v", since)
		}
	})
}

func TestEmailVectorLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	for _, id := range []string{"e1", "e2"} {
		err := c.Insert(ctx, &models.Email{EmailID: id, Subject: "s", Body: "b", Sender: "x@y.z", ReceivedAt: time.Now()})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	pending, err := c.UnindexedEmails(ctx, 0)
	if err != nil || len(pending) != 2 {
		t.Fatalf("UnindexedEmails = %d, %v; want 2", len(pending), err)
	}

	if err := c.SetEmailVectorID(ctx, "e1", "e1"); err != nil {
		t.Fatalf("SetEmailVectorID: %v", err)
	}
	if err := c.SetEmailVectorID(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	pending, _ = c.UnindexedEmails(ctx, 0)
	if len(pending) != 1 || pending[0].EmailID != "e2" {
		t.Errorf("pending = %+v, want only e2", pending)
	}

	got, err := c.EmailsByIDs(ctx, []string{"e1", "nope"})
	if err != nil {
		t.Fatalf("EmailsByIDs: %v", err)
	}
	if len(got) != 1 || got["e1"].VectorID == nil || *got["e1"].VectorID != "e1" {
		t.Errorf("EmailsByIDs = %+v", got)
	}

	if _, err := c.GetEmail(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEmail err = %v, want ErrNotFound", err)
	}
}

func TestPersistEvents(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	events := []models.InsightEvent{
		{Source: models.SourceTickets, ID: "t1", Content: "a", Status: "open", UserID: "u", CreatedAt: time.Now()},
		{Source: models.SourceForum, ID: "p1", Content: "b", Extras: `{"forum":"General"}`, CreatedAt: time.Now()},
	}

	n, err := c.PersistEvents(ctx, "run-1", events)
	if err != nil || n != 2 {
		t.Fatalf("PersistEvents = %d, %v", n, err)
	}

	count, err := c.CountEvents(ctx, "run-1")
	if err != nil || count != 2 {
		t.Errorf("CountEvents = %d, %v; want 2", count, err)
	}
}

func TestDailyCounts(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	days := []time.Time{
		time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
	}
	for i, d := range days {
		day := d
		c.SetClock(func() time.Time { return day })
		err := c.Insert(ctx, &models.ForumPost{PostID: string(rune('a' + i)), Forum: "f", Title: "t", Content: "c", Author: "a", CreatedAt: day})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	counts, err := c.DailyCounts(ctx, 30)
	if err != nil {
		t.Fatalf("DailyCounts: %v", err)
	}
	if len(counts) != 2 || counts[0].Date != "2024-03-09" {
		t.Errorf("counts = %+v, want newest first", counts)
	}
	if counts[0].Count(models.SourceForum) != 1 {
		t.Errorf("forum count = %d, want 1", counts[0].Count(models.SourceForum))
	}
}
