package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/soundprediction/reconcile/pkg/store"
)

// Config holds all configuration for the application.
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Store selects and configures the storage backend.
	Store store.Config `mapstructure:"store"`

	// NLP holds the chat model catalog used by the oracle.
	NLP NLPConfig `mapstructure:"nlp"`

	// Embedding configures the embedding client.
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Oracle configures invalidation judgments.
	Oracle OracleConfig `mapstructure:"oracle"`

	// Reconciler configures batch processing.
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`

	// Alert configuration
	Alert AlertConfig `mapstructure:"alert"`

	// CircuitBreaker configuration for the oracle's model client.
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// Export configures snapshot exports.
	Export ExportConfig `mapstructure:"export"`

	// Telemetry configures error and token-usage capture.
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NLPConfig holds the model catalog. Keys are role names ("default" is the
// oracle's judgment model); values describe how to reach the model.
type NLPConfig struct {
	Models map[string]NLPModelConfig `mapstructure:"models"`
}

// NLPModelConfig holds configuration for a specific model.
type NLPModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// OracleConfig holds invalidation oracle configuration.
type OracleConfig struct {
	// Model names the entry in nlp.models used for judgments.
	Model string `mapstructure:"model"`
	// MaxAttempts bounds calls per judgment, including the first.
	MaxAttempts int `mapstructure:"max_attempts"`
	// CacheTTL bounds how long a judgment is reused for the same fact pair.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// CacheCleanupInterval is how often expired judgments are evicted.
	CacheCleanupInterval time.Duration `mapstructure:"cache_cleanup_interval"`
}

// ReconcilerConfig holds batch processing configuration.
type ReconcilerConfig struct {
	// GroupID is the default partition for batches that carry none.
	GroupID string `mapstructure:"group_id"`
	// MaxWorkers scales the invalidation worker pool.
	MaxWorkers int `mapstructure:"max_workers"`
	// BatchSize is the number of comparison tasks run between pauses.
	BatchSize int `mapstructure:"batch_size"`
	// BatchPause is the rest between task batches, easing API pressure.
	BatchPause time.Duration `mapstructure:"batch_pause"`
	// GenerateEmbeddings backfills missing fact embeddings during ingestion.
	GenerateEmbeddings bool `mapstructure:"generate_embeddings"`
}

// AlertConfig holds configuration for alerting.
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// CircuitBreakerConfig holds configuration for circuit breaking.
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// ExportConfig holds snapshot export configuration.
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// TelemetryConfig holds telemetry capture configuration. An empty Dir
// disables capture.
type TelemetryConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("store.type", string(store.TypeMemory))
	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("store.data_dir", fmt.Sprintf("%s/.reconcile/data", home))
		viper.SetDefault("export.dir", fmt.Sprintf("%s/.reconcile/export", home))
	}
	viper.SetDefault("store.max_connections", 10)

	viper.SetDefault("nlp.models.default.provider", "openai")
	viper.SetDefault("nlp.models.default.model", "gpt-4o")
	viper.SetDefault("nlp.models.default.temperature", 0.0)
	viper.SetDefault("nlp.models.default.max_tokens", 256)

	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "text-embedding-3-small")

	viper.SetDefault("oracle.model", "default")
	viper.SetDefault("oracle.max_attempts", 3)
	viper.SetDefault("oracle.cache_ttl", 30*time.Minute)
	viper.SetDefault("oracle.cache_cleanup_interval", 10*time.Minute)

	viper.SetDefault("reconciler.group_id", "default")
	viper.SetDefault("reconciler.max_workers", 5)
	viper.SetDefault("reconciler.batch_size", 10)
	viper.SetDefault("reconciler.batch_pause", 200*time.Millisecond)
	viper.SetDefault("reconciler.generate_embeddings", true)

	viper.SetDefault("circuit_breaker.enabled", false)
	viper.SetDefault("circuit_breaker.max_requests", 3)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 60)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)
}

// overrideWithEnv overrides config with environment variables.
func overrideWithEnv(config *Config) {
	if config.NLP.Models == nil {
		config.NLP.Models = make(map[string]NLPModelConfig)
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		for name, model := range config.NLP.Models {
			if model.APIKey == "" {
				model.APIKey = apiKey
				config.NLP.Models[name] = model
			}
		}
		if config.Embedding.APIKey == "" {
			config.Embedding.APIKey = apiKey
		}
	}

	if storeType := os.Getenv("RECONCILE_STORE_TYPE"); storeType != "" {
		config.Store.Type = store.Type(storeType)
	}
	if dsn := os.Getenv("RECONCILE_STORE_DSN"); dsn != "" {
		config.Store.ConnectionString = dsn
	}
	if dataDir := os.Getenv("RECONCILE_STORE_DATA_DIR"); dataDir != "" {
		config.Store.DataDir = dataDir
	}
	if groupID := os.Getenv("RECONCILE_GROUP_ID"); groupID != "" {
		config.Reconciler.GroupID = groupID
	}
	if exportDir := os.Getenv("RECONCILE_EXPORT_DIR"); exportDir != "" {
		config.Export.Dir = exportDir
	}
	if telemetryDir := os.Getenv("RECONCILE_TELEMETRY_DIR"); telemetryDir != "" {
		config.Telemetry.Dir = telemetryDir
	}

	// Neo4j backends are usually configured through the driver's own family
	// of variables, so honor those too.
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Store.Type = store.TypeNeo4j
		config.Store.ConnectionString = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Store.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Store.Password = pass
	}
}
