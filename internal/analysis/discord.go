package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/signal-insights/backend/internal/storage/models"
)

const announcementThreshold = 0.7

type ChannelActivity struct {
	ChannelID    string    `json:"channelId"`
	Count        int       `json:"count"`
	LastActivity time.Time `json:"lastActivity"`
}

type Announcement struct {
	MessageID   string   `json:"message_id"`
	Channel     string   `json:"channel"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	KeyPoints   []string `json:"key_points"`
	Confidence  float64  `json:"confidence"`
}

type DiscordReport struct {
	DateRange struct {
		MessageCount int `json:"messageCount"`
	} `json:"dateRange"`
	Channels      []ChannelActivity `json:"channels"`
	Announcements []Announcement    `json:"announcements"`
	Summary       string            `json:"summary"`
}

// announcementVerdict is the per-message result; messages the model does not
// list are not announcements.
type announcementVerdict struct {
	Announcement Announcement
	Detected     bool
}

type announcementItem struct {
	MessageID   flexID   `json:"message_id" validate:"required"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	KeyPoints   []string `json:"key_points"`
	Confidence  float64  `json:"confidence" validate:"gte=0,lte=1"`
}

type announcementReply struct {
	Announcements []announcementItem `json:"announcements" validate:"dive"`
	Summary       string             `json:"summary"`
}

func (s *Service) Discord(ctx context.Context) (DiscordReport, error) {
	defer observe("discord", time.Now())

	messages, err := s.store.ListDiscordMessages(ctx, s.cfg.Discord.FetchLimit)
	if err != nil {
		return DiscordReport{}, fmt.Errorf("failed to load discord messages: %w", err)
	}

	var report DiscordReport
	report.Channels = []ChannelActivity{}
	report.Announcements = []Announcement{}

	if len(messages) == 0 {
		report.Summary = "No messages found for the selected time period."
		return report, nil
	}
	report.DateRange.MessageCount = len(messages)

	// Messages arrive newest first, so the first one seen per channel is its latest.
	index := make(map[string]int)
	for _, m := range messages {
		i, ok := index[m.ChannelID]
		if !ok {
			index[m.ChannelID] = len(report.Channels)
			report.Channels = append(report.Channels, ChannelActivity{ChannelID: m.ChannelID, Count: 1, LastActivity: m.CreatedAt})
			continue
		}
		report.Channels[i].Count++
	}

	sample := mostRecent(messages, s.cfg.Discord.SampleSize)

	task := BatchTask[models.DiscordMessage, announcementVerdict]{
		Name:   "discord.announcements",
		System: "You are a Discord announcement analyzer. Respond with valid JSON only, no markdown, no explanation.",
		Instruction: func([]models.DiscordMessage) string {
			return `Analyze these Discord messages and identify important announcements and milestones.

Look for feature launches, product releases, policy changes, events, major community updates,
maintenance notices, security announcements and partnerships.

For each announcement found give the message_id shown in brackets, a brief title, a description,
2-4 key points and a confidence from 0 to 1.

Return JSON with this exact structure:
{
  "announcements": [
    {"message_id": "id", "title": "Brief title", "description": "What was announced", "key_points": ["point1"], "confidence": 0.95}
  ],
  "summary": "Brief overall summary of announcements detected"
}

If no significant announcements are found, return an empty announcements array.

Messages to analyze:`
		},
		Render: func(m models.DiscordMessage, _ int) string {
			return fmt.Sprintf("[%s] #%s %s: %s", m.MessageID, m.ChannelID, m.AuthorID, m.Content)
		},
		Decode: func(content string, batch []models.DiscordMessage) (BatchReply[announcementVerdict], error) {
			var reply announcementReply
			if err := decodeStrict(s.validate, content, &reply); err != nil {
				return BatchReply[announcementVerdict]{}, err
			}

			positions := make(map[string]int, len(batch))
			for i, m := range batch {
				positions[m.MessageID] = i
			}

			items := make(map[int]announcementVerdict, len(batch))
			for _, a := range reply.Announcements {
				pos, ok := positions[string(a.MessageID)]
				if !ok {
					continue
				}
				if _, seen := items[pos]; seen {
					continue
				}
				keyPoints := a.KeyPoints
				if keyPoints == nil {
					keyPoints = []string{}
				}
				items[pos] = announcementVerdict{
					Detected: true,
					Announcement: Announcement{
						MessageID:   batch[pos].MessageID,
						Channel:     batch[pos].ChannelID,
						Title:       a.Title,
						Description: a.Description,
						KeyPoints:   keyPoints,
						Confidence:  a.Confidence,
					},
				}
			}
			// Unlisted messages were judged and rejected, so they count as model output.
			for i := range batch {
				if _, ok := items[i]; !ok {
					items[i] = announcementVerdict{}
				}
			}
			return BatchReply[announcementVerdict]{Items: items, Summary: reply.Summary}, nil
		},
		Fallback: func(models.DiscordMessage) announcementVerdict { return announcementVerdict{} },
		Config:   s.cfg.Discord,
	}

	run := RunBatches(ctx, s.llm, s.cfg.Concurrency, task, sample)

	for _, r := range run.Results {
		if r.Value.Detected && r.Value.Announcement.Confidence > announcementThreshold {
			report.Announcements = append(report.Announcements, r.Value.Announcement)
		}
	}

	switch {
	case run.Fallbacks == len(sample):
		report.Summary = "Analysis completed but no significant announcements detected."
	case len(run.Summaries) > 0:
		report.Summary = run.Summaries[0]
	default:
		report.Summary = "Analysis completed."
	}

	return report, nil
}
