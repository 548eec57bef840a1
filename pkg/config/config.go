package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	LLM       LLMConfig
	Vector    VectorConfig
	Redis     RedisConfig
	Analysis  AnalysisConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	IsDevelopment  bool
}

type SQLiteConfig struct {
	Path string
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	MaxAttempts    int
	EmbeddingModel string
}

// VectorConfig points at a Milvus/Zilliz deployment holding email embeddings.
// An empty endpoint disables similarity search.
type VectorConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

// RedisConfig is optional; an empty host disables the embedding cache.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	EmbeddingTTL int
}

// TaskConfig sizes one batched inference task. SampleSize caps the rows
// sent to the model when a task analyzes only the most recent ones; zero
// sends every fetched row.
type TaskConfig struct {
	FetchLimit int
	SampleSize int
	BatchSize  int
	MaxChars   int
	MaxTokens  int
}

type AnalysisConfig struct {
	Concurrency      int
	Tickets          TaskConfig
	GitHub           TaskConfig
	Discord          TaskConfig
	Email            TaskConfig
	TwitterFeatures  TaskConfig
	TwitterSentiment TaskConfig
	Forum            TaskConfig
	Advice           TaskConfig
	SimilarTopK      int
}

type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerMinute int
	Burst                int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/signal-insights")

	v.SetEnvPrefix("SIGNALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.isDevelopment", false)

	v.SetDefault("sqlite.path", "./data/signals.db")

	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 2048)
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.maxAttempts", 1)
	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")

	v.SetDefault("vector.endpoint", "")
	v.SetDefault("vector.apiKey", "")
	v.SetDefault("vector.collectionName", "email_vectors")
	v.SetDefault("vector.vectorDim", 1536)

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embeddingTTL", 86400)

	v.SetDefault("analysis.concurrency", 1)
	v.SetDefault("analysis.similarTopK", 11)
	setTaskDefaults(v, "tickets", 100, 0, 50, 8000, 2048)
	setTaskDefaults(v, "github", 100, 0, 50, 8000, 2048)
	setTaskDefaults(v, "discord", 100, 50, 50, 8000, 1024)
	setTaskDefaults(v, "email", 100, 0, 10, 6000, 1024)
	setTaskDefaults(v, "twitterFeatures", 0, 0, 10, 8000, 2048)
	setTaskDefaults(v, "twitterSentiment", 500, 0, 50, 6000, 1024)
	setTaskDefaults(v, "forum", 0, 30, 0, 8000, 1024)
	setTaskDefaults(v, "advice", 0, 0, 0, 4000, 1024)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.maxRequestsPerMinute", 120)
	v.SetDefault("rateLimit.burst", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}

func setTaskDefaults(v *viper.Viper, task string, fetchLimit, sampleSize, batchSize, maxChars, maxTokens int) {
	prefix := "analysis." + task + "."
	v.SetDefault(prefix+"fetchLimit", fetchLimit)
	v.SetDefault(prefix+"sampleSize", sampleSize)
	v.SetDefault(prefix+"batchSize", batchSize)
	v.SetDefault(prefix+"maxChars", maxChars)
	v.SetDefault(prefix+"maxTokens", maxTokens)
}
