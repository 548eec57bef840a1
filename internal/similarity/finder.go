package similarity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/signal-insights/backend/internal/metrics"
	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/internal/vector/zilliz"
	"github.com/signal-insights/backend/pkg/logger"
)

const maxSimilar = 10

// VectorStore is the nearest-neighbour index holding one vector per email.
type VectorStore interface {
	Upsert(ctx context.Context, emailID string, vec []float32) error
	GetVector(ctx context.Context, emailID string) ([]float32, bool, error)
	Search(ctx context.Context, vec []float32, topK int) ([]zilliz.Match, error)
}

// EmailLookup resolves email ids back to stored rows.
type EmailLookup interface {
	EmailsByIDs(ctx context.Context, emailIDs []string) (map[string]models.Email, error)
}

// SimilarEmail is one neighbour. A match whose row is gone keeps its id and
// score with empty fields.
type SimilarEmail struct {
	EmailID    string  `json:"email_id"`
	Subject    string  `json:"subject"`
	Sender     string  `json:"sender"`
	ReceivedAt string  `json:"received_at"`
	Similarity float32 `json:"similarity"`
}

type Finder struct {
	vectors VectorStore
	emails  EmailLookup
	topK    int
}

// NewFinder returns a finder; a nil vector store makes every lookup empty.
func NewFinder(vectors VectorStore, emails EmailLookup, topK int) *Finder {
	if topK <= 0 {
		topK = maxSimilar + 1
	}
	return &Finder{vectors: vectors, emails: emails, topK: topK}
}

// Similar returns up to ten emails nearest to emailID, best first. Every
// failure degrades to an empty result.
func (f *Finder) Similar(ctx context.Context, emailID string) []SimilarEmail {
	out := []SimilarEmail{}

	if f.vectors == nil {
		metrics.SimilarityLookups.WithLabelValues("unavailable").Inc()
		return out
	}

	vec, ok, err := f.vectors.GetVector(ctx, emailID)
	if err != nil {
		logger.Warn("Failed to load email vector", zap.String("email_id", emailID), zap.Error(err))
		metrics.SimilarityLookups.WithLabelValues("error").Inc()
		return out
	}
	if !ok {
		metrics.SimilarityLookups.WithLabelValues("missing").Inc()
		return out
	}

	matches, err := f.vectors.Search(ctx, vec, f.topK)
	if err != nil {
		logger.Warn("Similarity search failed", zap.String("email_id", emailID), zap.Error(err))
		metrics.SimilarityLookups.WithLabelValues("error").Inc()
		return out
	}

	kept := make([]zilliz.Match, 0, maxSimilar)
	ids := make([]string, 0, maxSimilar)
	for _, m := range matches {
		if m.ID == emailID {
			continue
		}
		if len(kept) == maxSimilar {
			break
		}
		kept = append(kept, m)
		ids = append(ids, m.ID)
	}
	if len(kept) == 0 {
		metrics.SimilarityLookups.WithLabelValues("ok").Inc()
		return out
	}

	rows, err := f.emails.EmailsByIDs(ctx, ids)
	if err != nil {
		logger.Warn("Failed to resolve similar emails", zap.Error(err))
		metrics.SimilarityLookups.WithLabelValues("error").Inc()
		return out
	}

	for _, m := range kept {
		item := SimilarEmail{EmailID: m.ID, Similarity: m.Score}
		if e, ok := rows[m.ID]; ok {
			item.Subject = e.Subject
			item.Sender = e.Sender
			if !e.ReceivedAt.IsZero() {
				item.ReceivedAt = e.ReceivedAt.UTC().Format(time.RFC3339)
			}
		}
		out = append(out, item)
	}

	metrics.SimilarityLookups.WithLabelValues("ok").Inc()
	return out
}
