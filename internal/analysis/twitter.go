package analysis

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/signal-insights/backend/internal/storage/models"
)

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"

	insufficientData = "insufficient_data"
	minTrendSample   = 10
)

type SentimentVerdict struct {
	Label  string
	Score  float64
	Reason string
}

type TwitterFeatures struct {
	DateRange struct {
		Days        int `json:"days"`
		TotalTweets int `json:"totalTweets"`
	} `json:"dateRange"`
	Sentiment        SentimentSummary `json:"sentiment"`
	ContentAnalysis  ContentAnalysis  `json:"contentAnalysis"`
	AuthorAnalysis   AuthorAnalysis   `json:"authorAnalysis"`
	TemporalAnalysis TemporalAnalysis `json:"temporalAnalysis"`
	Insights         []string         `json:"insights"`
}

type SentimentSummary struct {
	Distribution struct {
		Positive int `json:"positive"`
		Negative int `json:"negative"`
		Neutral  int `json:"neutral"`
	} `json:"distribution"`
	AverageScore float64 `json:"averageScore"`
	Trend        string  `json:"trend"`
}

type WordStat struct {
	Word      string `json:"word"`
	Frequency int    `json:"frequency"`
	Sentiment string `json:"sentiment"`
}

type HashtagStat struct {
	Hashtag   string `json:"hashtag"`
	Frequency int    `json:"frequency"`
}

type ContentTypes struct {
	Questions     int `json:"questions"`
	Announcements int `json:"announcements"`
	Complaints    int `json:"complaints"`
	Praise        int `json:"praise"`
	General       int `json:"general"`
}

type ContentAnalysis struct {
	TopWords         []WordStat    `json:"topWords"`
	TopHashtags      []HashtagStat `json:"topHashtags"`
	ContentTypes     ContentTypes  `json:"contentTypes"`
	AvgLength        int           `json:"avgLength"`
	ContainsLinks    int           `json:"containsLinks"`
	ContainsMentions int           `json:"containsMentions"`
}

type AuthorStat struct {
	Author       string  `json:"author"`
	TweetCount   int     `json:"tweetCount"`
	AvgSentiment float64 `json:"avgSentiment"`
}

type AuthorAnalysis struct {
	TotalAuthors    int          `json:"totalAuthors"`
	TopAuthors      []AuthorStat `json:"topAuthors"`
	AuthorDiversity float64      `json:"authorDiversity"`
}

type TemporalAnalysis struct {
	PeakHours     []string `json:"peakHours"`
	PeakDays      []string `json:"peakDays"`
	ActivityTrend string   `json:"activityTrend"`
}

type sentimentItem struct {
	TweetIndex int      `json:"tweet_index" validate:"gte=1"`
	Sentiment  string   `json:"sentiment" validate:"required,oneof=positive negative neutral"`
	Score      *float64 `json:"sentiment_score" validate:"required,gte=-1,lte=1"`
	Reason     string   `json:"reason"`
}

type sentimentReply struct {
	Analyses []sentimentItem `json:"analyses" validate:"dive"`
}

func (r *sentimentReply) normalize() {
	for i := range r.Analyses {
		r.Analyses[i].Sentiment = strings.ToLower(strings.TrimSpace(r.Analyses[i].Sentiment))
	}
}

// scoredTweet pairs a tweet with its sentiment verdict.
type scoredTweet struct {
	models.TwitterPost
	SentimentVerdict
}

// TwitterFeatures scores tweets of the last days and extracts local features.
func (s *Service) TwitterFeatures(ctx context.Context, days int) (TwitterFeatures, error) {
	defer observe("twitter.features", time.Now())

	if days <= 0 {
		days = 90
	}
	since := s.now().UTC().AddDate(0, 0, -days)

	tweets, err := s.store.TweetsSince(ctx, since, s.cfg.TwitterFeatures.FetchLimit)
	if err != nil {
		return TwitterFeatures{}, fmt.Errorf("failed to load tweets: %w", err)
	}

	if len(tweets) == 0 {
		return emptyTwitterFeatures(days), nil
	}

	task := BatchTask[models.TwitterPost, SentimentVerdict]{
		Name:   "twitter.features",
		System: "You are a sentiment analysis expert. Analyze Twitter posts and respond with valid JSON only, no markdown, no explanation.",
		Instruction: func([]models.TwitterPost) string {
			return `Analyze the sentiment of these Twitter posts and classify each as POSITIVE, NEGATIVE, or NEUTRAL.
Also provide a sentiment score from -1 (very negative) to +1 (very positive).

Return JSON with this exact structure:
{
  "analyses": [
    {"tweet_index": 1, "sentiment": "POSITIVE", "sentiment_score": 0.85, "reason": "Brief explanation"}
  ]
}

Tweets to analyze:`
		},
		Render: func(t models.TwitterPost, pos int) string {
			return fmt.Sprintf("Tweet %d: %s", pos+1, t.Content)
		},
		Decode: func(content string, batch []models.TwitterPost) (BatchReply[SentimentVerdict], error) {
			var reply sentimentReply
			if err := decodeStrict(s.validate, content, &reply); err != nil {
				return BatchReply[SentimentVerdict]{}, err
			}
			items := make(map[int]SentimentVerdict, len(batch))
			for _, a := range reply.Analyses {
				pos := a.TweetIndex - 1
				if pos < 0 || pos >= len(batch) {
					continue
				}
				if _, seen := items[pos]; seen {
					continue
				}
				items[pos] = SentimentVerdict{Label: a.Sentiment, Score: *a.Score, Reason: a.Reason}
			}
			return BatchReply[SentimentVerdict]{Items: items}, nil
		},
		Fallback: func(models.TwitterPost) SentimentVerdict {
			return SentimentVerdict{Label: SentimentNeutral, Score: 0}
		},
		Config: s.cfg.TwitterFeatures,
	}

	run := RunBatches(ctx, s.llm, s.cfg.Concurrency, task, tweets)

	scored := make([]scoredTweet, len(tweets))
	for i, t := range tweets {
		scored[i] = scoredTweet{TwitterPost: t, SentimentVerdict: run.Results[i].Value}
	}

	features := extractFeatures(scored)
	features.DateRange.Days = days
	features.DateRange.TotalTweets = len(tweets)
	return features, nil
}

func emptyTwitterFeatures(days int) TwitterFeatures {
	var f TwitterFeatures
	f.DateRange.Days = days
	f.Sentiment.Trend = insufficientData
	f.ContentAnalysis.TopWords = []WordStat{}
	f.ContentAnalysis.TopHashtags = []HashtagStat{}
	f.AuthorAnalysis.TopAuthors = []AuthorStat{}
	f.TemporalAnalysis.PeakHours = []string{}
	f.TemporalAnalysis.PeakDays = []string{}
	f.TemporalAnalysis.ActivityTrend = insufficientData
	f.Insights = []string{"No tweets found for the selected time period"}
	return f
}

// extractFeatures folds scored tweets, ordered oldest first, into the report.
func extractFeatures(tweets []scoredTweet) TwitterFeatures {
	var f TwitterFeatures
	n := float64(len(tweets))

	var totalScore float64
	for _, t := range tweets {
		switch t.Label {
		case SentimentPositive:
			f.Sentiment.Distribution.Positive++
		case SentimentNegative:
			f.Sentiment.Distribution.Negative++
		default:
			f.Sentiment.Distribution.Neutral++
		}
		totalScore += t.Score
	}
	avgScore := totalScore / n
	f.Sentiment.AverageScore = round2(avgScore)
	f.Sentiment.Trend = sentimentTrend(tweets)

	wordCounts := make(map[string]int)
	wordScores := make(map[string]float64)
	tagCounts := make(map[string]int)
	var totalLength, links, mentions int

	for _, t := range tweets {
		content := strings.ToLower(t.Content)
		totalLength += utf8.RuneCountInString(content)

		if strings.Contains(content, "http") || strings.Contains(content, "www.") {
			links++
		}
		if strings.Contains(content, "@") {
			mentions++
		}

		switch classifyContent(content) {
		case "questions":
			f.ContentAnalysis.ContentTypes.Questions++
		case "announcements":
			f.ContentAnalysis.ContentTypes.Announcements++
		case "complaints":
			f.ContentAnalysis.ContentTypes.Complaints++
		case "praise":
			f.ContentAnalysis.ContentTypes.Praise++
		default:
			f.ContentAnalysis.ContentTypes.General++
		}

		for _, w := range significantWords(content) {
			wordCounts[w]++
			wordScores[w] += t.Score
		}
		for _, tag := range hashtags(content) {
			tagCounts[tag]++
		}
	}

	f.ContentAnalysis.TopWords = []WordStat{}
	for _, c := range topCounts(wordCounts, 10) {
		f.ContentAnalysis.TopWords = append(f.ContentAnalysis.TopWords, WordStat{
			Word:      c.key,
			Frequency: c.count,
			Sentiment: sentimentLabel(wordScores[c.key] / float64(c.count)),
		})
	}

	f.ContentAnalysis.TopHashtags = []HashtagStat{}
	for _, c := range topCounts(tagCounts, 10) {
		f.ContentAnalysis.TopHashtags = append(f.ContentAnalysis.TopHashtags, HashtagStat{Hashtag: c.key, Frequency: c.count})
	}

	f.ContentAnalysis.AvgLength = int(math.Round(float64(totalLength) / n))
	f.ContentAnalysis.ContainsLinks = int(math.Round(float64(links) / n * 100))
	f.ContentAnalysis.ContainsMentions = int(math.Round(float64(mentions) / n * 100))

	authorCounts := make(map[string]int)
	authorScores := make(map[string]float64)
	for _, t := range tweets {
		authorCounts[t.Author]++
		authorScores[t.Author] += t.Score
	}
	f.AuthorAnalysis.TotalAuthors = len(authorCounts)
	f.AuthorAnalysis.TopAuthors = []AuthorStat{}
	for _, c := range topCounts(authorCounts, 5) {
		f.AuthorAnalysis.TopAuthors = append(f.AuthorAnalysis.TopAuthors, AuthorStat{
			Author:       c.key,
			TweetCount:   c.count,
			AvgSentiment: round2(authorScores[c.key] / float64(c.count)),
		})
	}
	diversity := float64(len(authorCounts)) / n
	f.AuthorAnalysis.AuthorDiversity = round2(diversity)

	hourCounts := make(map[string]int)
	dayCounts := make(map[string]int)
	for _, t := range tweets {
		ts := t.CreatedAt.UTC()
		hourCounts[strconv.Itoa(ts.Hour())]++
		dayCounts[strings.ToLower(ts.Weekday().String())]++
	}
	f.TemporalAnalysis.PeakHours = []string{}
	for _, c := range topCounts(hourCounts, 3) {
		f.TemporalAnalysis.PeakHours = append(f.TemporalAnalysis.PeakHours, c.key+":00")
	}
	f.TemporalAnalysis.PeakDays = []string{}
	for _, c := range topCounts(dayCounts, 3) {
		f.TemporalAnalysis.PeakDays = append(f.TemporalAnalysis.PeakDays, c.key)
	}
	f.TemporalAnalysis.ActivityTrend = string(activityTrend(tweets))

	f.Insights = twitterInsights(avgScore, f.ContentAnalysis, diversity, f.TemporalAnalysis.ActivityTrend)
	return f
}

func classifyContent(content string) string {
	switch {
	case strings.Contains(content, "?"):
		return "questions"
	case strings.Contains(content, "announcing"), strings.Contains(content, "launch"), strings.Contains(content, "new"):
		return "announcements"
	case strings.Contains(content, "issue"), strings.Contains(content, "problem"), strings.Contains(content, "bug"):
		return "complaints"
	case strings.Contains(content, "great"), strings.Contains(content, "awesome"), strings.Contains(content, "amazing"):
		return "praise"
	default:
		return "general"
	}
}

func sentimentLabel(avg float64) string {
	switch {
	case avg > 0.1:
		return SentimentPositive
	case avg < -0.1:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// sentimentTrend compares mean scores of the two halves once more than ten
// tweets are available.
func sentimentTrend(tweets []scoredTweet) string {
	if len(tweets) <= minTrendSample {
		return string(TrendStable)
	}
	mid := len(tweets) / 2
	diff := meanScore(tweets[mid:]) - meanScore(tweets[:mid])
	switch {
	case diff > 0.1:
		return "improving"
	case diff < -0.1:
		return "declining"
	default:
		return string(TrendStable)
	}
}

func meanScore(tweets []scoredTweet) float64 {
	var sum float64
	for _, t := range tweets {
		sum += t.Score
	}
	return sum / float64(len(tweets))
}

// activityTrend splits the covered time span in half and compares tweet volume.
func activityTrend(tweets []scoredTweet) Trend {
	if len(tweets) <= minTrendSample {
		return TrendStable
	}
	first := tweets[0].CreatedAt
	last := tweets[0].CreatedAt
	for _, t := range tweets[1:] {
		if t.CreatedAt.Before(first) {
			first = t.CreatedAt
		}
		if t.CreatedAt.After(last) {
			last = t.CreatedAt
		}
	}
	if !last.After(first) {
		return TrendStable
	}

	mid := first.Add(last.Sub(first) / 2)
	var before, after int
	for _, t := range tweets {
		if t.CreatedAt.Before(mid) {
			before++
		} else {
			after++
		}
	}
	return VolumeTrend(float64(before), float64(after))
}

func twitterInsights(avgScore float64, content ContentAnalysis, diversity float64, activity string) []string {
	var insights []string

	switch {
	case avgScore > 0.2:
		insights = append(insights, "Overall positive sentiment in Twitter discussions")
	case avgScore < -0.2:
		insights = append(insights, "Overall negative sentiment detected")
	default:
		insights = append(insights, "Neutral sentiment in Twitter conversations")
	}

	if float64(content.ContentTypes.Questions) > float64(content.ContentTypes.General)*0.5 {
		insights = append(insights, "High engagement with many questions being asked")
	}
	if diversity < 0.3 {
		insights = append(insights, "Limited author diversity - mostly from same users")
	}
	if len(content.TopHashtags) > 0 {
		tags := make([]string, 0, 3)
		for i := 0; i < len(content.TopHashtags) && i < 3; i++ {
			tags = append(tags, content.TopHashtags[i].Hashtag)
		}
		insights = append(insights, "Popular hashtags: "+strings.Join(tags, ", "))
	}
	if activity == string(TrendIncreasing) {
		insights = append(insights, "Twitter activity is increasing over time")
	}

	return insights
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
