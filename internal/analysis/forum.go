package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/pkg/utils"
)

const (
	defaultForum        = "General"
	forumListedPosts    = 10
	forumFallbackReason = "Unable to generate summary at this time."
)

type ForumSummary struct {
	Forum     string             `json:"forum"`
	PostCount int                `json:"postCount"`
	Summary   string             `json:"summary"`
	TopTopics []string           `json:"topTopics"`
	Posts     []models.ForumPost `json:"posts"`
}

type ForumReport struct {
	TotalPosts int            `json:"totalPosts"`
	Forums     []ForumSummary `json:"forums"`
}

type forumReply struct {
	Summary string   `json:"summary" validate:"required"`
	Topics  []string `json:"topics"`
}

// Forum groups posts by forum and summarizes each group with one call.
func (s *Service) Forum(ctx context.Context) (ForumReport, error) {
	defer observe("forum", time.Now())

	posts, err := s.store.ListForumPosts(ctx, s.cfg.Forum.FetchLimit)
	if err != nil {
		return ForumReport{}, fmt.Errorf("failed to load forum posts: %w", err)
	}

	report := ForumReport{TotalPosts: len(posts), Forums: []ForumSummary{}}
	if len(posts) == 0 {
		return report, nil
	}

	var order []string
	groups := make(map[string][]models.ForumPost)
	for _, p := range posts {
		name := strings.TrimSpace(p.Forum)
		if name == "" {
			name = defaultForum
		}
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], p)
	}

	summaries := make([]ForumSummary, len(order))

	concurrency := s.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, name := range order {
		i, name := i, name
		group := groups[name]
		g.Go(func() error {
			summary, topics := s.summarizeForum(ctx, name, group)
			listed := group
			if len(listed) > forumListedPosts {
				listed = listed[:forumListedPosts]
			}
			summaries[i] = ForumSummary{
				Forum:     name,
				PostCount: len(group),
				Summary:   summary,
				TopTopics: topics,
				Posts:     listed,
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].PostCount != summaries[j].PostCount {
			return summaries[i].PostCount > summaries[j].PostCount
		}
		return summaries[i].Forum < summaries[j].Forum
	})
	report.Forums = summaries

	return report, nil
}

func (s *Service) summarizeForum(ctx context.Context, forum string, posts []models.ForumPost) (string, []string) {
	sample := mostRecent(posts, s.cfg.Forum.SampleSize)

	var b strings.Builder
	for i, p := range sample {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i, strings.TrimSpace(p.Title), strings.TrimSpace(p.Content))
	}

	prompt := fmt.Sprintf(`Summarize the discussion in the %q forum based on these %d posts.

Return a valid JSON object with this structure:
{
  "summary": "Two or three sentences describing what people are discussing",
  "topics": ["topic 1", "topic 2", "topic 3"]
}

Posts:
%s`, forum, len(sample), utils.Truncate(b.String(), s.cfg.Forum.MaxChars))

	var reply forumReply
	err := callJSON(ctx, s.llm, s.validate, "forum.summary",
		"You are a community manager summarizing forum discussions. Respond with valid JSON only.",
		prompt, s.cfg.Forum.MaxTokens, &reply)
	if err != nil {
		logFallback("forum.summary", err)
		return forumFallbackReason, []string{}
	}

	topics := make([]string, 0, len(reply.Topics))
	for _, t := range reply.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return reply.Summary, topics
}
