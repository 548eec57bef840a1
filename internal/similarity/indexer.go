package similarity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/signal-insights/backend/internal/ingestion"
	"github.com/signal-insights/backend/internal/metrics"
	"github.com/signal-insights/backend/internal/storage/models"
	"github.com/signal-insights/backend/pkg/logger"
	"github.com/signal-insights/backend/pkg/utils"
)

var errNoVectorStore = errors.New("vector index is not configured")

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache memoizes embeddings by the hash of their input text.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32) error
}

// EmailIndexStore is the row store side of the indexing job.
type EmailIndexStore interface {
	UnindexedEmails(ctx context.Context, limit int) ([]models.Email, error)
	SetEmailVectorID(ctx context.Context, emailID, vectorID string) error
}

type IndexResult struct {
	Success bool `json:"success"`
	Indexed int  `json:"indexed"`
	Errors  int  `json:"errors"`
}

type Indexer struct {
	store    EmailIndexStore
	embedder Embedder
	vectors  VectorStore
	cache    EmbeddingCache
}

// NewIndexer wires the job. vectors and cache may be nil.
func NewIndexer(store EmailIndexStore, embedder Embedder, vectors VectorStore, cache EmbeddingCache) *Indexer {
	return &Indexer{store: store, embedder: embedder, vectors: vectors, cache: cache}
}

// IndexAll embeds every email without a vector reference. Per-email failures
// are counted and skipped; only the initial row query can fail the job.
func (ix *Indexer) IndexAll(ctx context.Context) (IndexResult, error) {
	emails, err := ix.store.UnindexedEmails(ctx, 0)
	if err != nil {
		return IndexResult{}, fmt.Errorf("failed to load unindexed emails: %w", err)
	}

	var result IndexResult
	for _, e := range emails {
		if err := ix.indexOne(ctx, e); err != nil {
			logger.Warn("Failed to index email",
				zap.String("email_id", e.EmailID),
				zap.Error(err),
			)
			metrics.EmbeddingsIndexed.WithLabelValues("error").Inc()
			result.Errors++
			continue
		}
		metrics.EmbeddingsIndexed.WithLabelValues("ok").Inc()
		result.Indexed++
	}
	result.Success = result.Errors == 0

	logger.Info("Email indexing finished",
		zap.Int("indexed", result.Indexed),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

func (ix *Indexer) indexOne(ctx context.Context, e models.Email) error {
	if ix.vectors == nil {
		return errNoVectorStore
	}

	text := strings.TrimSpace(e.Subject + " " + ingestion.PlainText(e.Body))
	vec, err := ix.embed(ctx, text)
	if err != nil {
		return err
	}

	if err := ix.vectors.Upsert(ctx, e.EmailID, vec); err != nil {
		return err
	}
	return ix.store.SetEmailVectorID(ctx, e.EmailID, e.EmailID)
}

func (ix *Indexer) embed(ctx context.Context, text string) ([]float32, error) {
	if ix.cache == nil {
		return ix.embedder.GenerateEmbedding(ctx, text)
	}

	hash := utils.HashString(text)
	if vec, ok, err := ix.cache.GetEmbedding(ctx, hash); err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
	} else if ok {
		return vec, nil
	}

	vec, err := ix.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := ix.cache.SetEmbedding(ctx, hash, vec); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
	return vec, nil
}
