package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signal-insights/backend/internal/storage/models"
)

type scanner interface {
	Scan(dest ...any) error
}

// limitClause returns an empty clause for limit <= 0.
func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func unix(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

func (c *Client) ListTickets(ctx context.Context, limit int) ([]models.Ticket, error) {
	query := `SELECT id, ticket_id, content, status, user_id, created_at
		FROM customer_support_tickets ORDER BY created_at DESC, id DESC` + limitClause(limit)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	tickets := []models.Ticket{}
	for rows.Next() {
		var t models.Ticket
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.TicketID, &t.Content, &t.Status, &t.UserID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		t.CreatedAt = unix(createdAt)
		tickets = append(tickets, t)
	}

	return tickets, rows.Err()
}

func (c *Client) ListDiscordMessages(ctx context.Context, limit int) ([]models.DiscordMessage, error) {
	query := `SELECT id, message_id, channel_id, content, author_id, created_at
		FROM discord_messages ORDER BY created_at DESC, id DESC` + limitClause(limit)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list discord messages: %w", err)
	}
	defer rows.Close()

	messages := []models.DiscordMessage{}
	for rows.Next() {
		var m models.DiscordMessage
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.MessageID, &m.ChannelID, &m.Content, &m.AuthorID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.CreatedAt = unix(createdAt)
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (c *Client) ListGitHubIssues(ctx context.Context, limit int) ([]models.GitHubIssue, error) {
	query := `SELECT id, issue_id, repo, title, body, state, created_at
		FROM github_issues ORDER BY created_at DESC, id DESC` + limitClause(limit)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list github issues: %w", err)
	}
	defer rows.Close()

	issues := []models.GitHubIssue{}
	for rows.Next() {
		var i models.GitHubIssue
		var createdAt int64
		if err := rows.Scan(&i.ID, &i.IssueID, &i.Repo, &i.Title, &i.Body, &i.State, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		i.CreatedAt = unix(createdAt)
		issues = append(issues, i)
	}

	return issues, rows.Err()
}

const emailColumns = `id, email_id, subject, body, sender, received_at, vector_id`

func scanEmail(s scanner) (models.Email, error) {
	var e models.Email
	var receivedAt int64
	var vectorID sql.NullString
	if err := s.Scan(&e.ID, &e.EmailID, &e.Subject, &e.Body, &e.Sender, &receivedAt, &vectorID); err != nil {
		return models.Email{}, err
	}
	e.ReceivedAt = unix(receivedAt)
	if vectorID.Valid {
		v := vectorID.String
		e.VectorID = &v
	}
	return e, nil
}

func (c *Client) queryEmails(ctx context.Context, query string, args ...any) ([]models.Email, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	emails := []models.Email{}
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		emails = append(emails, e)
	}

	return emails, rows.Err()
}

func (c *Client) ListEmails(ctx context.Context, limit int) ([]models.Email, error) {
	return c.queryEmails(ctx, `SELECT `+emailColumns+` FROM emails ORDER BY received_at DESC, id DESC`+limitClause(limit))
}

// UnindexedEmails returns emails that have no vector reference yet, oldest first.
func (c *Client) UnindexedEmails(ctx context.Context, limit int) ([]models.Email, error) {
	return c.queryEmails(ctx, `SELECT `+emailColumns+` FROM emails WHERE vector_id IS NULL ORDER BY id ASC`+limitClause(limit))
}

func (c *Client) GetEmail(ctx context.Context, emailID string) (*models.Email, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE email_id = ?`, emailID)
	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return &e, nil
}

// EmailsByIDs resolves external ids to rows; unknown ids are absent from the map.
func (c *Client) EmailsByIDs(ctx context.Context, emailIDs []string) (map[string]models.Email, error) {
	found := make(map[string]models.Email, len(emailIDs))
	if len(emailIDs) == 0 {
		return found, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(emailIDs)), ",")
	args := make([]any, len(emailIDs))
	for i, id := range emailIDs {
		args[i] = id
	}

	emails, err := c.queryEmails(ctx, `SELECT `+emailColumns+` FROM emails WHERE email_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, e := range emails {
		found[e.EmailID] = e
	}
	return found, nil
}

// SetEmailVectorID records the vector index key written for an email.
func (c *Client) SetEmailVectorID(ctx context.Context, emailID, vectorID string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE emails SET vector_id = ? WHERE email_id = ?`, vectorID, emailID)
	if err != nil {
		return fmt.Errorf("failed to set vector id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set vector id: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) queryTweets(ctx context.Context, query string, args ...any) ([]models.TwitterPost, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tweets: %w", err)
	}
	defer rows.Close()

	posts := []models.TwitterPost{}
	for rows.Next() {
		var p models.TwitterPost
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.TweetID, &p.Content, &p.Author, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		p.CreatedAt = unix(createdAt)
		posts = append(posts, p)
	}

	return posts, rows.Err()
}

func (c *Client) ListTwitterPosts(ctx context.Context, limit int) ([]models.TwitterPost, error) {
	return c.queryTweets(ctx, `SELECT id, tweet_id, content, author, created_at
		FROM twitter_posts ORDER BY created_at DESC, id DESC`+limitClause(limit))
}

// TweetsSince returns tweets created at or after since, oldest first.
func (c *Client) TweetsSince(ctx context.Context, since time.Time, limit int) ([]models.TwitterPost, error) {
	return c.queryTweets(ctx, `SELECT id, tweet_id, content, author, created_at
		FROM twitter_posts WHERE created_at >= ? ORDER BY created_at ASC, id ASC`+limitClause(limit), since.Unix())
}

func (c *Client) ListForumPosts(ctx context.Context, limit int) ([]models.ForumPost, error) {
	query := `SELECT id, post_id, forum, title, content, author, created_at
		FROM forum_posts ORDER BY created_at DESC, id DESC` + limitClause(limit)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list forum posts: %w", err)
	}
	defer rows.Close()

	posts := []models.ForumPost{}
	for rows.Next() {
		var p models.ForumPost
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.PostID, &p.Forum, &p.Title, &p.Content, &p.Author, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		p.CreatedAt = unix(createdAt)
		posts = append(posts, p)
	}

	return posts, rows.Err()
}
