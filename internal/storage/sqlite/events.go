package sqlite

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/pkg/logger"
)

// PersistEvents appends events to the audit log under runID in one transaction.
func (c *Client) PersistEvents(ctx context.Context, runID string, events []models.InsightEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO insights_events (run_id, source, source_id, content, status, user_id, created_at, extras, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	recordedAt := c.now().Unix()
	for _, ev := range events {
		_, err := stmt.ExecContext(ctx,
			runID,
			string(ev.Source),
			ev.ID,
			ev.Content,
			ev.Status,
			ev.UserID,
			ev.CreatedAt.Unix(),
			ev.Extras,
			recordedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}

	logger.Info("Insight events persisted",
		zap.String("run_id", runID),
		zap.Int("count", len(events)),
	)
	return len(events), nil
}

// CountEvents returns the number of audit rows recorded for a run.
func (c *Client) CountEvents(ctx context.Context, runID string) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM insights_events WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
