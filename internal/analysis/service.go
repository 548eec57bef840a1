package analysis

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/signal-insights/backend/internal/metrics"
	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/pkg/config"
)

// Store is the read side of the row store used by analysis endpoints.
type Store interface {
	ListTickets(ctx context.Context, limit int) ([]models.Ticket, error)
	ListGitHubIssues(ctx context.Context, limit int) ([]models.GitHubIssue, error)
	ListDiscordMessages(ctx context.Context, limit int) ([]models.DiscordMessage, error)
	ListEmails(ctx context.Context, limit int) ([]models.Email, error)
	ListTwitterPosts(ctx context.Context, limit int) ([]models.TwitterPost, error)
	TweetsSince(ctx context.Context, since time.Time, limit int) ([]models.TwitterPost, error)
	ListForumPosts(ctx context.Context, limit int) ([]models.ForumPost, error)
}

// Service runs the batched classification and summarization endpoints.
// Only storage errors are returned; inference failures degrade to fallbacks.
type Service struct {
	store    Store
	llm      Completer
	cfg      config.AnalysisConfig
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store Store, completer Completer, cfg config.AnalysisConfig) *Service {
	return &Service{
		store:    store,
		llm:      completer,
		cfg:      cfg,
		validate: validator.New(),
		now:      time.Now,
	}
}

// SetClock replaces the clock used for empty-state ranges and time windows.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func observe(endpoint string, start time.Time) {
	metrics.AnalysisDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// mostRecent keeps the first n rows of a newest-first listing; n <= 0 keeps all.
func mostRecent[R any](rows []R, n int) []R {
	if n <= 0 || len(rows) <= n {
		return rows
	}
	return rows[:n]
}
