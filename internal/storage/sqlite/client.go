package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/pkg/logger"
)

var (
	ErrDuplicate = errors.New("record already exists")
	ErrNotFound  = errors.New("record not found")
)

const dateLayout = "2006-01-02"

type Client struct {
	db  *sql.DB
	now func() time.Time
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer keeps the counter upsert and :memory: databases consistent.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, now: time.Now}, nil
}

// SetClock replaces the clock used for counter dates.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customer_support_tickets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id TEXT UNIQUE NOT NULL,
		content TEXT NOT NULL,
		status TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_created ON customer_support_tickets(created_at);

	CREATE TABLE IF NOT EXISTS discord_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT UNIQUE NOT NULL,
		channel_id TEXT NOT NULL,
		content TEXT NOT NULL,
		author_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_discord_created ON discord_messages(created_at);
	CREATE INDEX IF NOT EXISTS idx_discord_channel ON discord_messages(channel_id);

	CREATE TABLE IF NOT EXISTS github_issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		issue_id INTEGER UNIQUE NOT NULL,
		repo TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_issues_created ON github_issues(created_at);

	CREATE TABLE IF NOT EXISTS emails (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email_id TEXT UNIQUE NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		sender TEXT NOT NULL,
		received_at INTEGER NOT NULL,
		vector_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_emails_received ON emails(received_at);
	CREATE INDEX IF NOT EXISTS idx_emails_vector ON emails(vector_id);

	CREATE TABLE IF NOT EXISTS twitter_posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tweet_id TEXT UNIQUE NOT NULL,
		content TEXT NOT NULL,
		author TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tweets_created ON twitter_posts(created_at);

	CREATE TABLE IF NOT EXISTS forum_posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id TEXT UNIQUE NOT NULL,
		forum TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		author TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_forum_created ON forum_posts(created_at);

	CREATE TABLE IF NOT EXISTS insights_aggregated (
		date TEXT PRIMARY KEY,
		total_tickets INTEGER NOT NULL DEFAULT 0,
		total_discord INTEGER NOT NULL DEFAULT 0,
		total_issues INTEGER NOT NULL DEFAULT 0,
		total_emails INTEGER NOT NULL DEFAULT 0,
		total_tweets INTEGER NOT NULL DEFAULT 0,
		total_forum INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS insights_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		source TEXT NOT NULL,
		source_id TEXT NOT NULL,
		content TEXT,
		status TEXT,
		user_id TEXT,
		created_at INTEGER NOT NULL,
		extras TEXT,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_run ON insights_events(run_id);
	CREATE INDEX IF NOT EXISTS idx_events_source ON insights_events(source);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// Insert stores rec and increments today's counter for its source in one transaction.
func (c *Client) Insert(ctx context.Context, rec models.Record) error {
	query, args, err := insertStatement(rec)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %s: %w", rec.Source(), rec.ExternalID(), ErrDuplicate)
		}
		return fmt.Errorf("failed to insert %s record: %w", rec.Source(), err)
	}

	column := rec.Source().CounterColumn()
	counter := fmt.Sprintf(`
		INSERT INTO insights_aggregated (date, %[1]s) VALUES (?, 1)
		ON CONFLICT(date) DO UPDATE SET %[1]s = %[1]s + 1
	`, column)

	today := c.now().UTC().Format(dateLayout)
	if _, err := tx.ExecContext(ctx, counter, today); err != nil {
		return fmt.Errorf("failed to update daily counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert: %w", err)
	}

	logger.Debug("Record inserted",
		zap.String("source", string(rec.Source())),
		zap.String("external_id", rec.ExternalID()),
	)
	return nil
}

func insertStatement(rec models.Record) (string, []any, error) {
	ts := rec.Timestamp().Unix()

	switch r := rec.(type) {
	case *models.Ticket:
		return `INSERT INTO customer_support_tickets (ticket_id, content, status, user_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			[]any{r.TicketID, r.Content, r.Status, r.UserID, ts}, nil
	case *models.DiscordMessage:
		return `INSERT INTO discord_messages (message_id, channel_id, content, author_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			[]any{r.MessageID, r.ChannelID, r.Content, r.AuthorID, ts}, nil
	case *models.GitHubIssue:
		return `INSERT INTO github_issues (issue_id, repo, title, body, state, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{r.IssueID, r.Repo, r.Title, r.Body, r.State, ts}, nil
	case *models.Email:
		return `INSERT INTO emails (email_id, subject, body, sender, received_at) VALUES (?, ?, ?, ?, ?)`,
			[]any{r.EmailID, r.Subject, r.Body, r.Sender, ts}, nil
	case *models.TwitterPost:
		return `INSERT INTO twitter_posts (tweet_id, content, author, created_at) VALUES (?, ?, ?, ?)`,
			[]any{r.TweetID, r.Content, r.Author, ts}, nil
	case *models.ForumPost:
		return `INSERT INTO forum_posts (post_id, forum, title, content, author, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{r.PostID, r.Forum, r.Title, r.Content, r.Author, ts}, nil
	}
	return "", nil, fmt.Errorf("unsupported record type %T", rec)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// CountRows returns the number of rows stored for a source.
func (c *Client) CountRows(ctx context.Context, source models.Source) (int64, error) {
	table := source.Table()
	if table == "" {
		return 0, fmt.Errorf("unknown source %q", source)
	}

	var n int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s rows: %w", source, err)
	}
	return n, nil
}

// DailyCount returns the counter row for a date, or a zero row when absent.
func (c *Client) DailyCount(ctx context.Context, date string) (models.DailyCount, error) {
	query := `
		SELECT date, total_tickets, total_discord, total_issues, total_emails, total_tweets, total_forum
		FROM insights_aggregated WHERE date = ?
	`

	var d models.DailyCount
	err := c.db.QueryRowContext(ctx, query, date).Scan(
		&d.Date, &d.TotalTickets, &d.TotalDiscord, &d.TotalIssues, &d.TotalEmails, &d.TotalTweets, &d.TotalForum,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DailyCount{Date: date}, nil
	}
	if err != nil {
		return models.DailyCount{}, fmt.Errorf("failed to get daily count: %w", err)
	}
	return d, nil
}

// DailyCounts returns up to days counter rows, newest first.
func (c *Client) DailyCounts(ctx context.Context, days int) ([]models.DailyCount, error) {
	query := `
		SELECT date, total_tickets, total_discord, total_issues, total_emails, total_tweets, total_forum
		FROM insights_aggregated
		ORDER BY date DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily counts: %w", err)
	}
	defer rows.Close()

	counts := []models.DailyCount{}
	for rows.Next() {
		var d models.DailyCount
		err := rows.Scan(&d.Date, &d.TotalTickets, &d.TotalDiscord, &d.TotalIssues, &d.TotalEmails, &d.TotalTweets, &d.TotalForum)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts = append(counts, d)
	}

	return counts, rows.Err()
}
