package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/signal-insights/backend/internal/ingestion"
	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/pkg/utils"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

const emailBodyPreview = 500

type PriorityVerdict struct {
	Priority   Priority
	Confidence float64
	Reason     string
}

type ClassifiedEmail struct {
	EmailID    string    `json:"email_id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Sender     string    `json:"sender"`
	ReceivedAt time.Time `json:"received_at"`
	Priority   Priority  `json:"priority"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
}

type PriorityGroups struct {
	High   []ClassifiedEmail `json:"high"`
	Medium []ClassifiedEmail `json:"medium"`
	Low    []ClassifiedEmail `json:"low"`
}

type EmailInsights struct {
	HighCount      int      `json:"highCount"`
	MediumCount    int      `json:"mediumCount"`
	LowCount       int      `json:"lowCount"`
	HighPercentage int      `json:"highPercentage"`
	UrgentSenders  []string `json:"urgentSenders"`
}

type EmailReport struct {
	DateRange struct {
		EmailCount int `json:"emailCount"`
	} `json:"dateRange"`
	Priorities PriorityGroups `json:"priorities"`
	Summary    string         `json:"summary"`
	Insights   EmailInsights  `json:"insights"`
}

type priorityItem struct {
	EmailID    flexID  `json:"email_id" validate:"required"`
	Priority   string  `json:"priority" validate:"required,oneof=high medium low"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Reason     string  `json:"reason"`
}

type priorityReply struct {
	Classifications []priorityItem `json:"classifications" validate:"dive"`
	Summary         string         `json:"summary"`
}

func (r *priorityReply) normalize() {
	for i := range r.Classifications {
		r.Classifications[i].Priority = strings.ToLower(strings.TrimSpace(r.Classifications[i].Priority))
	}
}

// Email triages recent emails into high, medium and low priority.
func (s *Service) Email(ctx context.Context) (EmailReport, error) {
	defer observe("email", time.Now())

	emails, err := s.store.ListEmails(ctx, s.cfg.Email.FetchLimit)
	if err != nil {
		return EmailReport{}, fmt.Errorf("failed to load emails: %w", err)
	}

	report := EmailReport{
		Priorities: PriorityGroups{High: []ClassifiedEmail{}, Medium: []ClassifiedEmail{}, Low: []ClassifiedEmail{}},
		Insights:   EmailInsights{UrgentSenders: []string{}},
	}
	if len(emails) == 0 {
		report.Summary = "No emails found for the selected time period."
		return report, nil
	}
	report.DateRange.EmailCount = len(emails)

	task := BatchTask[models.Email, PriorityVerdict]{
		Name:   "email.priority",
		System: "You are an email triage assistant. Respond with valid JSON only, no markdown, no explanation.",
		Instruction: func([]models.Email) string {
			return `Analyze these emails and classify each by priority level: HIGH, MEDIUM, or LOW.

Priority Guidelines:
- HIGH: Urgent matters, deadlines, complaints, critical issues, security alerts, payment problems
- MEDIUM: Regular business updates, meeting requests, informational emails, routine communications
- LOW: Newsletters, automated notifications, marketing, general announcements, promotional content

Return JSON with this exact structure:
{
  "classifications": [
    {"email_id": "id", "priority": "HIGH", "confidence": 0.92, "reason": "Brief explanation"}
  ],
  "summary": "Overall email priority distribution and key observations"
}

Emails to analyze:`
		},
		Render: func(e models.Email, _ int) string {
			body := utils.Truncate(ingestion.PlainText(e.Body), emailBodyPreview)
			return fmt.Sprintf("[%s]\n[Subject] %s\n[Body] %s", e.EmailID, e.Subject, body)
		},
		Decode: func(content string, batch []models.Email) (BatchReply[PriorityVerdict], error) {
			var reply priorityReply
			if err := decodeStrict(s.validate, content, &reply); err != nil {
				return BatchReply[PriorityVerdict]{}, err
			}

			positions := make(map[string]int, len(batch))
			for i, e := range batch {
				positions[e.EmailID] = i
			}

			items := make(map[int]PriorityVerdict, len(reply.Classifications))
			for _, c := range reply.Classifications {
				pos, ok := positions[string(c.EmailID)]
				if !ok {
					continue
				}
				if _, seen := items[pos]; seen {
					continue
				}
				items[pos] = PriorityVerdict{Priority: Priority(c.Priority), Confidence: c.Confidence, Reason: c.Reason}
			}
			return BatchReply[PriorityVerdict]{Items: items, Summary: reply.Summary}, nil
		},
		Fallback: func(models.Email) PriorityVerdict {
			return PriorityVerdict{Priority: PriorityLow, Confidence: 0}
		},
		Config: s.cfg.Email,
	}

	run := RunBatches(ctx, s.llm, s.cfg.Concurrency, task, emails)

	seenSender := make(map[string]bool)
	for i, e := range emails {
		v := run.Results[i].Value
		ce := ClassifiedEmail{
			EmailID:    e.EmailID,
			Subject:    e.Subject,
			Body:       e.Body,
			Sender:     e.Sender,
			ReceivedAt: e.ReceivedAt,
			Priority:   v.Priority,
			Confidence: v.Confidence,
			Reason:     v.Reason,
		}
		switch v.Priority {
		case PriorityHigh:
			report.Priorities.High = append(report.Priorities.High, ce)
			if !seenSender[e.Sender] && len(report.Insights.UrgentSenders) < 5 {
				seenSender[e.Sender] = true
				report.Insights.UrgentSenders = append(report.Insights.UrgentSenders, e.Sender)
			}
		case PriorityMedium:
			report.Priorities.Medium = append(report.Priorities.Medium, ce)
		default:
			report.Priorities.Low = append(report.Priorities.Low, ce)
		}
	}

	report.Insights.HighCount = len(report.Priorities.High)
	report.Insights.MediumCount = len(report.Priorities.Medium)
	report.Insights.LowCount = len(report.Priorities.Low)
	report.Insights.HighPercentage = int(math.Round(float64(report.Insights.HighCount) / float64(len(emails)) * 100))

	switch {
	case run.Fallbacks == len(emails):
		report.Summary = "Analysis completed but no significant classifications detected."
	case len(run.Summaries) > 0:
		report.Summary = run.Summaries[0]
	default:
		report.Summary = "Analysis complete."
	}

	return report, nil
}
