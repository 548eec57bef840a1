package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signal-insights/backend/internal/metrics"
	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/pkg/logger"
)

type Store interface {
	ListTickets(ctx context.Context, limit int) ([]models.Ticket, error)
	ListDiscordMessages(ctx context.Context, limit int) ([]models.DiscordMessage, error)
	ListGitHubIssues(ctx context.Context, limit int) ([]models.GitHubIssue, error)
	ListEmails(ctx context.Context, limit int) ([]models.Email, error)
	ListTwitterPosts(ctx context.Context, limit int) ([]models.TwitterPost, error)
	ListForumPosts(ctx context.Context, limit int) ([]models.ForumPost, error)
	PersistEvents(ctx context.Context, runID string, events []models.InsightEvent) (int, error)
}

type Report struct {
	RunID          string                `json:"run_id"`
	Events         []models.InsightEvent `json:"events"`
	TotalEvents    int                   `json:"total_events"`
	Persisted      bool                  `json:"persisted"`
	PersistedCount int                   `json:"persisted_count"`
}

type Service struct {
	store Store
	newID func() string
}

func NewService(store Store) *Service {
	return &Service{store: store, newID: uuid.NewString}
}

// Collect unions every source table into tagged events and appends them to
// the audit log under a fresh run id.
func (s *Service) Collect(ctx context.Context) (Report, error) {
	events, err := s.gather(ctx)
	if err != nil {
		return Report{}, err
	}

	runID := s.newID()
	persisted, err := s.store.PersistEvents(ctx, runID, events)
	if err != nil {
		return Report{}, fmt.Errorf("failed to persist insight events: %w", err)
	}
	metrics.InsightEventsPersisted.Add(float64(persisted))

	logger.Info("Cross-source insights collected",
		zap.String("run_id", runID),
		zap.Int("events", len(events)),
	)

	return Report{
		RunID:          runID,
		Events:         events,
		TotalEvents:    len(events),
		Persisted:      true,
		PersistedCount: persisted,
	}, nil
}

func (s *Service) gather(ctx context.Context) ([]models.InsightEvent, error) {
	events := []models.InsightEvent{}

	tickets, err := s.store.ListTickets(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load tickets: %w", err)
	}
	for _, t := range tickets {
		events = append(events, models.InsightEvent{
			Source:    models.SourceTickets,
			ID:        t.TicketID,
			Content:   t.Content,
			Status:    t.Status,
			UserID:    t.UserID,
			CreatedAt: t.CreatedAt,
			Extras:    extras(map[string]string{"status": t.Status, "user_id": t.UserID}),
		})
	}

	messages, err := s.store.ListDiscordMessages(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load discord messages: %w", err)
	}
	for _, m := range messages {
		events = append(events, models.InsightEvent{
			Source:    models.SourceDiscord,
			ID:        m.MessageID,
			Content:   m.Content,
			UserID:    m.AuthorID,
			CreatedAt: m.CreatedAt,
			Extras:    extras(map[string]string{"channel_id": m.ChannelID, "author_id": m.AuthorID}),
		})
	}

	issues, err := s.store.ListGitHubIssues(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load github issues: %w", err)
	}
	for _, i := range issues {
		events = append(events, models.InsightEvent{
			Source:    models.SourceGitHub,
			ID:        strconv.FormatInt(i.IssueID, 10),
			Content:   i.Body,
			Status:    i.State,
			CreatedAt: i.CreatedAt,
			Extras:    extras(map[string]string{"repo": i.Repo, "title": i.Title, "state": i.State}),
		})
	}

	emails, err := s.store.ListEmails(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load emails: %w", err)
	}
	for _, e := range emails {
		events = append(events, models.InsightEvent{
			Source:    models.SourceEmail,
			ID:        e.EmailID,
			Content:   e.Body,
			UserID:    e.Sender,
			CreatedAt: e.ReceivedAt,
			Extras:    extras(map[string]string{"subject": e.Subject, "sender": e.Sender}),
		})
	}

	tweets, err := s.store.ListTwitterPosts(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load tweets: %w", err)
	}
	for _, t := range tweets {
		events = append(events, models.InsightEvent{
			Source:    models.SourceTwitter,
			ID:        t.TweetID,
			Content:   t.Content,
			UserID:    t.Author,
			CreatedAt: t.CreatedAt,
			Extras:    extras(map[string]string{"author": t.Author}),
		})
	}

	posts, err := s.store.ListForumPosts(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load forum posts: %w", err)
	}
	for _, p := range posts {
		events = append(events, models.InsightEvent{
			Source:    models.SourceForum,
			ID:        p.PostID,
			Content:   p.Content,
			UserID:    p.Author,
			CreatedAt: p.CreatedAt,
			Extras:    extras(map[string]string{"forum": p.Forum, "title": p.Title, "author": p.Author}),
		})
	}

	return events, nil
}

func extras(fields map[string]string) string {
	b, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(b)
}
