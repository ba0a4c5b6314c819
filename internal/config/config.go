package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		UserInteractions string `mapstructure:"user_interactions"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`

	// IssuerKey is the shared secret an upstream identity service
	// presents to mint user tokens. Issuance is disabled while empty.
	IssuerKey string `mapstructure:"issuer_key"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig configures the hybrid recommendation engine: the
// embedding producer, the vector index, the ALS trainer, and the hybrid
// ranker, plus the snapshot paths both caches persist to.
type EngineConfig struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	Factors        int     `mapstructure:"factors"`
	Iterations     int     `mapstructure:"iterations"`
	Regularization float64 `mapstructure:"regularization"`

	// ConfidenceAlpha scales interaction weights into implicit-feedback
	// confidence levels during ALS training.
	ConfidenceAlpha float64 `mapstructure:"confidence_alpha"`

	DefaultAlpha float64 `mapstructure:"default_alpha"`

	// CandidateFactor is how many times n each source over-fetches
	// before blending.
	CandidateFactor int `mapstructure:"candidate_factor"`

	DataDir         string `mapstructure:"data_dir"`
	IndexFile       string `mapstructure:"index_file"`
	IndexMapping    string `mapstructure:"index_mapping_file"`
	FactorModelFile string `mapstructure:"factor_model_file"`
}

type EmbeddingConfig struct {
	Dimensions   int           `mapstructure:"dimensions"`
	ModelVersion string        `mapstructure:"model_version"`
	BatchSize    int           `mapstructure:"batch_size"`
	WorkerCount  int           `mapstructure:"worker_count"`
	CachePrefix  string        `mapstructure:"cache_prefix"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	viper.SetDefault("database.url", "postgres://localhost:5432/fitfeed")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topics.user_interactions", "user-interactions")

	viper.SetDefault("auth.enabled", true)
	viper.SetDefault("auth.token_ttl", "24h")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("engine.embedding.dimensions", 384)
	viper.SetDefault("engine.embedding.model_version", "hash-v1")
	viper.SetDefault("engine.embedding.batch_size", 32)
	viper.SetDefault("engine.embedding.worker_count", 4)
	viper.SetDefault("engine.embedding.cache_prefix", "embed:item")
	viper.SetDefault("engine.embedding.cache_ttl", "24h")

	viper.SetDefault("engine.factors", 50)
	viper.SetDefault("engine.iterations", 15)
	viper.SetDefault("engine.regularization", 0.01)
	viper.SetDefault("engine.confidence_alpha", 40)
	viper.SetDefault("engine.default_alpha", 0.5)
	viper.SetDefault("engine.candidate_factor", 2)

	viper.SetDefault("engine.data_dir", "./data")
	viper.SetDefault("engine.index_file", "index.bin")
	viper.SetDefault("engine.index_mapping_file", "index_mapping.json")
	viper.SetDefault("engine.factor_model_file", "factor_model.json")

	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
