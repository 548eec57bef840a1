package zilliz

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/signal-insights/backend/pkg/logger"
)

const (
	idField        = "email_id"
	embeddingField = "embedding"
)

// Client stores one embedding per email, keyed by the email's external id.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

type Match struct {
	ID    string
	Score float32
}

func NewClient(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (z *Client) Close() error {
	return z.client.Close()
}

// EnsureCollection creates and loads the email collection when missing.
func (z *Client) EnsureCollection(ctx context.Context) error {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !has {
		schema := &entity.Schema{
			CollectionName: z.collectionName,
			Description:    "Email embeddings for similarity lookup",
			Fields: []*entity.Field{
				{
					Name:       idField,
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{
						"max_length": "256",
					},
				},
				{
					Name:     embeddingField,
					DataType: entity.FieldTypeFloatVector,
					TypeParams: map[string]string{
						"dim": strconv.Itoa(z.vectorDim),
					},
				},
			},
		}

		if err := z.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
		if err != nil {
			return fmt.Errorf("failed to build index params: %w", err)
		}
		if err := z.client.CreateIndex(ctx, z.collectionName, embeddingField, idx, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}

		logger.Info("Collection created", zap.String("collection", z.collectionName))
	}

	if err := z.client.LoadCollection(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	return nil
}

// Upsert writes the vector for one email, replacing any previous vector.
func (z *Client) Upsert(ctx context.Context, emailID string, embedding []float32) error {
	if len(embedding) != z.vectorDim {
		return fmt.Errorf("embedding has dimension %d, collection expects %d", len(embedding), z.vectorDim)
	}

	_, err := z.client.Upsert(
		ctx,
		z.collectionName,
		"",
		entity.NewColumnVarChar(idField, []string{emailID}),
		entity.NewColumnFloatVector(embeddingField, z.vectorDim, [][]float32{embedding}),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	if err := z.client.Flush(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Debug("Embedding upserted", zap.String("email_id", emailID))
	return nil
}

// GetVector returns the stored vector of an email; ok is false when none exists.
func (z *Client) GetVector(ctx context.Context, emailID string) ([]float32, bool, error) {
	expr := fmt.Sprintf("%s in [%s]", idField, strconv.Quote(emailID))

	rs, err := z.client.Query(ctx, z.collectionName, nil, expr, []string{embeddingField})
	if err != nil {
		return nil, false, fmt.Errorf("failed to query vector: %w", err)
	}

	col, ok := rs.GetColumn(embeddingField).(*entity.ColumnFloatVector)
	if !ok || col.Len() == 0 {
		return nil, false, nil
	}

	return col.Data()[0], true, nil
}

// Search returns the topK nearest emails to vec, best first.
func (z *Client) Search(ctx context.Context, vec []float32, topK int) ([]Match, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := z.client.Search(
		ctx,
		z.collectionName,
		[]string{},
		"",
		[]string{idField},
		[]entity.Vector{entity.FloatVector(vec)},
		embeddingField,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]Match, 0, topK)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			raw, err := sr.IDs.Get(i)
			if err != nil {
				continue
			}
			id, ok := raw.(string)
			if !ok {
				continue
			}
			matches = append(matches, Match{ID: id, Score: sr.Scores[i]})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}
