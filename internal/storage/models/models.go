package models

import (
	"fmt"
	"strconv"
	"time"
)

// Source tags every record from ingestion onward.
type Source string

const (
	SourceTickets Source = "tickets"
	SourceDiscord Source = "discord"
	SourceGitHub  Source = "github"
	SourceEmail   Source = "email"
	SourceTwitter Source = "twitter"
	SourceForum   Source = "forum"
)

var AllSources = []Source{
	SourceTickets,
	SourceDiscord,
	SourceGitHub,
	SourceEmail,
	SourceTwitter,
	SourceForum,
}

func ParseSource(s string) (Source, error) {
	for _, src := range AllSources {
		if string(src) == s {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Table is the row table holding records of this source.
func (s Source) Table() string {
	switch s {
	case SourceTickets:
		return "customer_support_tickets"
	case SourceDiscord:
		return "discord_messages"
	case SourceGitHub:
		return "github_issues"
	case SourceEmail:
		return "emails"
	case SourceTwitter:
		return "twitter_posts"
	case SourceForum:
		return "forum_posts"
	}
	return ""
}

// CounterColumn is the insights_aggregated column incremented on ingest.
func (s Source) CounterColumn() string {
	switch s {
	case SourceTickets:
		return "total_tickets"
	case SourceDiscord:
		return "total_discord"
	case SourceGitHub:
		return "total_issues"
	case SourceEmail:
		return "total_emails"
	case SourceTwitter:
		return "total_tweets"
	case SourceForum:
		return "total_forum"
	}
	return ""
}

// Record is implemented by every ingestible row type.
type Record interface {
	Source() Source
	ExternalID() string
	Timestamp() time.Time
	SetTimestamp(time.Time)
}

type Ticket struct {
	ID        int64     `json:"id"`
	TicketID  string    `json:"ticket_id" validate:"required"`
	Content   string    `json:"content" validate:"required"`
	Status    string    `json:"status" validate:"required"`
	UserID    string    `json:"user_id" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *Ticket) Source() Source            { return SourceTickets }
func (t *Ticket) ExternalID() string        { return t.TicketID }
func (t *Ticket) Timestamp() time.Time      { return t.CreatedAt }
func (t *Ticket) SetTimestamp(ts time.Time) { t.CreatedAt = ts }

type DiscordMessage struct {
	ID        int64     `json:"id"`
	MessageID string    `json:"message_id" validate:"required"`
	ChannelID string    `json:"channel_id" validate:"required"`
	Content   string    `json:"content" validate:"required"`
	AuthorID  string    `json:"author_id" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *DiscordMessage) Source() Source            { return SourceDiscord }
func (m *DiscordMessage) ExternalID() string        { return m.MessageID }
func (m *DiscordMessage) Timestamp() time.Time      { return m.CreatedAt }
func (m *DiscordMessage) SetTimestamp(ts time.Time) { m.CreatedAt = ts }

type GitHubIssue struct {
	ID        int64     `json:"id"`
	IssueID   int64     `json:"issue_id" validate:"required,gt=0"`
	Repo      string    `json:"repo" validate:"required"`
	Title     string    `json:"title" validate:"required"`
	Body      string    `json:"body" validate:"required"`
	State     string    `json:"state" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}

func (i *GitHubIssue) Source() Source            { return SourceGitHub }
func (i *GitHubIssue) ExternalID() string        { return strconv.FormatInt(i.IssueID, 10) }
func (i *GitHubIssue) Timestamp() time.Time      { return i.CreatedAt }
func (i *GitHubIssue) SetTimestamp(ts time.Time) { i.CreatedAt = ts }

type Email struct {
	ID         int64     `json:"id"`
	EmailID    string    `json:"email_id" validate:"required"`
	Subject    string    `json:"subject" validate:"required"`
	Body       string    `json:"body" validate:"required"`
	Sender     string    `json:"sender" validate:"required"`
	ReceivedAt time.Time `json:"received_at"`
	VectorID   *string   `json:"vector_id,omitempty"`
}

func (e *Email) Source() Source            { return SourceEmail }
func (e *Email) ExternalID() string        { return e.EmailID }
func (e *Email) Timestamp() time.Time      { return e.ReceivedAt }
func (e *Email) SetTimestamp(ts time.Time) { e.ReceivedAt = ts }

type TwitterPost struct {
	ID        int64     `json:"id"`
	TweetID   string    `json:"tweet_id" validate:"required"`
	Content   string    `json:"content" validate:"required"`
	Author    string    `json:"author" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *TwitterPost) Source() Source            { return SourceTwitter }
func (p *TwitterPost) ExternalID() string        { return p.TweetID }
func (p *TwitterPost) Timestamp() time.Time      { return p.CreatedAt }
func (p *TwitterPost) SetTimestamp(ts time.Time) { p.CreatedAt = ts }

type ForumPost struct {
	ID        int64     `json:"id"`
	PostID    string    `json:"post_id" validate:"required"`
	Forum     string    `json:"forum" validate:"required"`
	Title     string    `json:"title" validate:"required"`
	Content   string    `json:"content" validate:"required"`
	Author    string    `json:"author" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *ForumPost) Source() Source            { return SourceForum }
func (p *ForumPost) ExternalID() string        { return p.PostID }
func (p *ForumPost) Timestamp() time.Time      { return p.CreatedAt }
func (p *ForumPost) SetTimestamp(ts time.Time) { p.CreatedAt = ts }

// NewRecord returns an empty record of the given source, ready for decoding.
func NewRecord(s Source) (Record, error) {
	switch s {
	case SourceTickets:
		return &Ticket{}, nil
	case SourceDiscord:
		return &DiscordMessage{}, nil
	case SourceGitHub:
		return &GitHubIssue{}, nil
	case SourceEmail:
		return &Email{}, nil
	case SourceTwitter:
		return &TwitterPost{}, nil
	case SourceForum:
		return &ForumPost{}, nil
	}
	return nil, fmt.Errorf("unknown source %q", s)
}

// DailyCount is one row of insights_aggregated.
type DailyCount struct {
	Date         string `json:"date"`
	TotalTickets int64  `json:"total_tickets"`
	TotalDiscord int64  `json:"total_discord"`
	TotalIssues  int64  `json:"total_issues"`
	TotalEmails  int64  `json:"total_emails"`
	TotalTweets  int64  `json:"total_tweets"`
	TotalForum   int64  `json:"total_forum"`
}

// Count returns the counter for one source.
func (d DailyCount) Count(s Source) int64 {
	switch s {
	case SourceTickets:
		return d.TotalTickets
	case SourceDiscord:
		return d.TotalDiscord
	case SourceGitHub:
		return d.TotalIssues
	case SourceEmail:
		return d.TotalEmails
	case SourceTwitter:
		return d.TotalTweets
	case SourceForum:
		return d.TotalForum
	}
	return 0
}

// InsightEvent is a source row flattened for the cross-source audit log.
type InsightEvent struct {
	Source    Source    `json:"source"`
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Extras    string    `json:"extras"`
}
