package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/internal/storage/sqlite"
)

type memStore struct {
	records []models.Record
	err     error
}

func (m *memStore) Insert(_ context.Context, rec models.Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	t.Run("defaults timestamp", func(t *testing.T) {
		store := &memStore{}
		p := NewProcessor(store)
		p.now = func() time.Time { return fixed }

		err := p.Collect(ctx, &models.Ticket{TicketID: "t1", Content: "broken", Status: "open", UserID: "u1"})
		if err != nil {
			t.Fatalf("Collect: %v", err)
		}
		if len(store.records) != 1 {
			t.Fatalf("stored %d records, want 1", len(store.records))
		}
		if got := store.records[0].Timestamp(); !got.Equal(fixed) {
			t.Errorf("timestamp = %v, want %v", got, fixed)
		}
	})

	t.Run("keeps supplied timestamp", func(t *testing.T) {
		store := &memStore{}
		p := NewProcessor(store)
		supplied := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

		err := p.Collect(ctx, &models.TwitterPost{TweetID: "1", Content: "hi", Author: "a", CreatedAt: supplied})
		if err != nil {
			t.Fatalf("Collect: %v", err)
		}
		if got := store.records[0].Timestamp(); !got.Equal(supplied) {
			t.Errorf("timestamp = %v, want %v", got, supplied)
		}
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		store := &memStore{}
		p := NewProcessor(store)

		err := p.Collect(ctx, &models.Email{EmailID: "e1", Subject: "s"})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("err = %v, want ValidationError", err)
		}
		for _, field := range []string{"body", "sender"} {
			if _, ok := verr.Fields[field]; !ok {
				t.Errorf("missing %q in %v", field, verr.Fields)
			}
		}
		if len(store.records) != 0 {
			t.Error("invalid record must not be stored")
		}
	})

	t.Run("issue id must be positive", func(t *testing.T) {
		p := NewProcessor(&memStore{})
		err := p.Collect(ctx, &models.GitHubIssue{IssueID: 0, Repo: "r", Title: "t", Body: "b", State: "open"})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("err = %v, want ValidationError", err)
		}
		if _, ok := verr.Fields["issue_id"]; !ok {
			t.Errorf("fields = %v, want issue_id", verr.Fields)
		}
	})

	t.Run("storage error propagates", func(t *testing.T) {
		p := NewProcessor(&memStore{err: sqlite.ErrDuplicate})
		err := p.Collect(ctx, &models.ForumPost{PostID: "p", Forum: "f", Title: "t", Content: "c", Author: "a"})
		if !errors.Is(err, sqlite.ErrDuplicate) {
			t.Errorf("err = %v, want ErrDuplicate", err)
		}
	})
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello\n\n  world", "hello world"},
		{"html", "<html><head><title>x</title></head><body><p>Hi <b>team</b>,</p><script>evil()</script><p>Thanks</p></body></html>", "Hi team,Thanks"},
		{"fragment", "<div>Order   #42</div>", "Order #42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.in); got != tt.want {
				t.Errorf("PlainText = %q, want %q", got, tt.want)
			}
		})
	}
}
