package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/signal-insights/backend/internal/analysis"
	"github.com/signal-insights/backend/internal/api"
	cacheredis "github.com/signal-insights/backend/internal/cache/redis"
	"github.com/signal-insights/backend/internal/ingestion"
	"github.com/signal-insights/backend/internal/insights"
	"github.com/signal-insights/backend/internal/llm"
	"github.com/signal-insights/backend/internal/metrics"
	"github.com/signal-insights/backend/internal/similarity"
	"github.com/signal-insights/backend/internal/storage/sqlite"
	"github.com/signal-insights/backend/internal/vector/zilliz"
	"github.com/signal-insights/backend/pkg/config"
	appLogger "github.com/signal-insights/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Signal Insights API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	llmClient := llm.NewClient(cfg.LLM)

	var vectors similarity.VectorStore
	if cfg.Vector.Endpoint != "" {
		zillizClient, err := connectVectorStore(cfg.Vector)
		if err != nil {
			appLogger.Warn("Vector index unavailable, similarity search disabled", zap.Error(err))
		} else {
			defer zillizClient.Close()
			vectors = zillizClient
		}
	} else {
		appLogger.Info("No vector endpoint configured, similarity search disabled")
	}

	var cache similarity.EmbeddingCache
	if cfg.Redis.Host != "" {
		redisClient, err := cacheredis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.EmbeddingTTL)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cache = redisClient
		}
	}

	processor := ingestion.NewProcessor(sqliteClient)
	analysisService := analysis.NewService(sqliteClient, llmClient, cfg.Analysis)
	finder := similarity.NewFinder(vectors, sqliteClient, cfg.Analysis.SimilarTopK)
	indexer := similarity.NewIndexer(sqliteClient, llmClient, vectors, cache)
	insightsService := insights.NewService(sqliteClient)

	app, stop := api.NewApp(cfg, api.Services{
		Store:     sqliteClient,
		Processor: processor,
		Analysis:  analysisService,
		Finder:    finder,
		Indexer:   indexer,
		Insights:  insightsService,
	})
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func connectVectorStore(cfg config.VectorConfig) (*zilliz.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := zilliz.NewClient(ctx, cfg.Endpoint, cfg.APIKey, cfg.CollectionName, cfg.VectorDim)
	if err != nil {
		return nil, err
	}

	if err := client.EnsureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
