package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/signal-insights/backend/internal/storage/models"
)

type TweetScore struct {
	TweetID string `json:"tweet_id"`
	Score   int    `json:"score"`
}

type OverallSentiment struct {
	OverallScore float64      `json:"overall_score"`
	TweetScores  []TweetScore `json:"tweet_scores"`
}

type scoreReply struct {
	Scores []float64 `json:"scores" validate:"dive,gte=-1,lte=1"`
}

// ScaleScore maps a -1..1 sentiment score onto the 1..5 scale.
func ScaleScore(s float64) int {
	return int(math.Round((s+1)/2*4)) + 1
}

// OverallSentiment scores every tweet and averages the 1..5 scaled scores.
func (s *Service) OverallSentiment(ctx context.Context) (OverallSentiment, error) {
	defer observe("twitter.overall", time.Now())

	tweets, err := s.store.ListTwitterPosts(ctx, s.cfg.TwitterSentiment.FetchLimit)
	if err != nil {
		return OverallSentiment{}, fmt.Errorf("failed to load tweets: %w", err)
	}

	out := OverallSentiment{TweetScores: []TweetScore{}}
	if len(tweets) == 0 {
		return out, nil
	}

	task := BatchTask[models.TwitterPost, float64]{
		Name:   "twitter.overall",
		System: "You are a sentiment analysis assistant. Respond with valid JSON only.",
		Instruction: func([]models.TwitterPost) string {
			return `Analyze the sentiment of these tweets and return scores from -1 (very negative) to +1 (very positive).

Return a valid JSON object with this structure:
{
  "scores": [-0.5, 0.8, 0.2]
}

Where each score corresponds to the tweet at that index.

Tweets to analyze:`
		},
		Render: func(t models.TwitterPost, pos int) string {
			return fmt.Sprintf("[%d] %s", pos, strings.TrimSpace(t.Content))
		},
		Decode: func(content string, batch []models.TwitterPost) (BatchReply[float64], error) {
			var reply scoreReply
			if err := decodeStrict(s.validate, content, &reply); err != nil {
				return BatchReply[float64]{}, err
			}
			items := make(map[int]float64, len(batch))
			for i, score := range reply.Scores {
				if i >= len(batch) {
					break
				}
				items[i] = score
			}
			return BatchReply[float64]{Items: items}, nil
		},
		Fallback: func(models.TwitterPost) float64 { return 0 },
		Config:   s.cfg.TwitterSentiment,
	}

	run := RunBatches(ctx, s.llm, s.cfg.Concurrency, task, tweets)

	total := 0
	for i, t := range tweets {
		scaled := ScaleScore(run.Results[i].Value)
		out.TweetScores = append(out.TweetScores, TweetScore{TweetID: t.TweetID, Score: scaled})
		total += scaled
	}
	out.OverallScore = math.Round(float64(total)/float64(len(tweets))*10) / 10

	return out, nil
}
