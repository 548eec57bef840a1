package analysis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/signal-insights/backend/internal/storage/models"
)

const (
	ticketCategoryExamples = `product-focused (e.g., "Mobile App", "Billing", "API", "Dashboard", "Authentication")`
	issueCategoryExamples  = `application-focused (e.g., "Frontend/UI", "API/Backend", "Database", "Authentication", ` +
		`"Mobile", "Testing", "Documentation", "Performance", "Security")`
)

type TicketExample struct {
	TicketID string `json:"ticket_id"`
	Content  string `json:"content"`
}

type IssueExample struct {
	IssueID string `json:"issue_id"`
	Title   string `json:"title"`
	State   string `json:"state"`
}

// Tickets groups the most recent support tickets into model-discovered
// product areas and asks for prioritised advice.
func (s *Service) Tickets(ctx context.Context) (CategoryReport, error) {
	defer observe("tickets", time.Now())

	tickets, err := s.store.ListTickets(ctx, s.cfg.Tickets.FetchLimit)
	if err != nil {
		return CategoryReport{}, fmt.Errorf("failed to load tickets: %w", err)
	}

	job := categorizeJob[models.Ticket]{
		task:        "tickets",
		noun:        "customer support tickets",
		subject:     "product areas/domains",
		examples:    ticketCategoryExamples,
		id:          func(t models.Ticket) string { return t.TicketID },
		text:        func(t models.Ticket) string { return t.Content },
		createdAt:   func(t models.Ticket) time.Time { return t.CreatedAt },
		example:     func(t models.Ticket) any { return TicketExample{TicketID: t.TicketID, Content: t.Content} },
		emptyAdvice: "No tickets to analyze for the selected time period.",
		taskCfg:     s.cfg.Tickets,
	}
	return categorize(ctx, s, job, tickets), nil
}

// GitHub runs the same category analysis over issues.
func (s *Service) GitHub(ctx context.Context) (CategoryReport, error) {
	defer observe("github", time.Now())

	issues, err := s.store.ListGitHubIssues(ctx, s.cfg.GitHub.FetchLimit)
	if err != nil {
		return CategoryReport{}, fmt.Errorf("failed to load github issues: %w", err)
	}

	job := categorizeJob[models.GitHubIssue]{
		task:      "github",
		noun:      "GitHub issues",
		subject:   "application areas/components",
		examples:  issueCategoryExamples,
		id:        func(i models.GitHubIssue) string { return strconv.FormatInt(i.IssueID, 10) },
		text:      func(i models.GitHubIssue) string { return i.Title + ": " + i.Body },
		createdAt: func(i models.GitHubIssue) time.Time { return i.CreatedAt },
		example: func(i models.GitHubIssue) any {
			return IssueExample{IssueID: strconv.FormatInt(i.IssueID, 10), Title: i.Title, State: i.State}
		},
		emptyAdvice: "No GitHub issues found for the selected time period.",
		taskCfg:     s.cfg.GitHub,
	}
	return categorize(ctx, s, job, issues), nil
}
