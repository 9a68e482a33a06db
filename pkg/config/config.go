// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Postings, Titles, Search, Redis, Postgres, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Postings  PostingsConfig  `yaml:"postings"`
	Titles    TitlesConfig    `yaml:"titles"`
	Search    SearchConfig    `yaml:"search"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds HTTP and RPC server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RPCPort         int           `yaml:"rpcPort"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// IndexConfig points at the pre-built term statistics dumps for each channel.
type IndexConfig struct {
	BodyPath       string `yaml:"bodyPath"`
	TitlePath      string `yaml:"titlePath"`
	CollectionSize int64  `yaml:"collectionSize"`
}

// PostingsConfig selects the blob backend that holds posting segments and the
// fault-tolerance policy applied to every segment read.
type PostingsConfig struct {
	Backend          string        `yaml:"backend"`
	DataDir          string        `yaml:"dataDir"`
	BodyPrefix       string        `yaml:"bodyPrefix"`
	TitlePrefix      string        `yaml:"titlePrefix"`
	Bucket           string        `yaml:"bucket"`
	Endpoint         string        `yaml:"endpoint"`
	Region           string        `yaml:"region"`
	AccessKey        string        `yaml:"accessKey"`
	SecretKey        string        `yaml:"secretKey"`
	UseSSL           bool          `yaml:"useSSL"`
	BlockSize        int64         `yaml:"blockSize"`
	RetryAttempts    int           `yaml:"retryAttempts"`
	RetryDelay       time.Duration `yaml:"retryDelay"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// TitlesConfig selects the document-title store.
type TitlesConfig struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	KeyPrefix string `yaml:"keyPrefix"`
	Table     string `yaml:"table"`
}

// SearchConfig controls result limits, channel weights and timeouts.
type SearchConfig struct {
	DefaultLimit        int           `yaml:"defaultLimit"`
	MaxResults          int           `yaml:"maxResults"`
	BodyWeight          float64       `yaml:"bodyWeight"`
	TitleWeight         float64       `yaml:"titleWeight"`
	CandidateMultiplier int           `yaml:"candidateMultiplier"`
	ChannelTimeout      time.Duration `yaml:"channelTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchEvents string `yaml:"searchEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// AnalyticsConfig controls search-event publishing and snapshotting.
// A BatchSize above 1 publishes events in batches instead of one by one.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	Port             int           `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values, or an error if the merged result is not usable.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the search pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Index.CollectionSize <= 0 {
		return fmt.Errorf("index.collectionSize must be positive, got %d", c.Index.CollectionSize)
	}
	switch c.Postings.Backend {
	case "local", "s3", "minio":
	default:
		return fmt.Errorf("postings.backend %q is not one of local, s3, minio", c.Postings.Backend)
	}
	if c.Postings.Backend != "local" && c.Postings.Bucket == "" {
		return fmt.Errorf("postings.bucket is required for backend %q", c.Postings.Backend)
	}
	if c.Postings.BlockSize <= 0 {
		return fmt.Errorf("postings.blockSize must be positive, got %d", c.Postings.BlockSize)
	}
	switch c.Titles.Backend {
	case "file", "redis", "postgres":
	default:
		return fmt.Errorf("titles.backend %q is not one of file, redis, postgres", c.Titles.Backend)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search limits invalid: defaultLimit=%d maxResults=%d", c.Search.DefaultLimit, c.Search.MaxResults)
	}
	if c.Search.CandidateMultiplier <= 0 {
		return fmt.Errorf("search.candidateMultiplier must be positive, got %d", c.Search.CandidateMultiplier)
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			RPCPort:         9000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Index: IndexConfig{
			BodyPath:       "data/index.json.zst",
			TitlePath:      "data/title_index.json.zst",
			CollectionSize: 6_348_910,
		},
		Postings: PostingsConfig{
			Backend:          "local",
			DataDir:          "data",
			BodyPrefix:       "postings_gcp",
			TitlePrefix:      "title_index/postings_gcp_title_index",
			Region:           "us-east-1",
			BlockSize:        1_999_998,
			RetryAttempts:    3,
			RetryDelay:       50 * time.Millisecond,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Titles: TitlesConfig{
			Backend:   "file",
			Path:      "data/titles.json.zst",
			KeyPrefix: "title:",
			Table:     "document_titles",
		},
		Search: SearchConfig{
			DefaultLimit:        100,
			MaxResults:          1000,
			BodyWeight:          0.6,
			TitleWeight:         0.4,
			CandidateMultiplier: 5,
			ChannelTimeout:      10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchplatform",
			User:            "searchplatform",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchplatform-group",
			Topics: KafkaTopics{
				SearchEvents: "search-events",
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Analytics: AnalyticsConfig{
			Enabled:          true,
			BufferSize:       10000,
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
			Port:             8082,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setInt("SP_SERVER_PORT", &cfg.Server.Port)
	setInt("SP_SERVER_RPC_PORT", &cfg.Server.RPCPort)

	setString("SP_INDEX_BODY_PATH", &cfg.Index.BodyPath)
	setString("SP_INDEX_TITLE_PATH", &cfg.Index.TitlePath)
	if v := os.Getenv("SP_INDEX_COLLECTION_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Index.CollectionSize = n
		}
	}

	setString("SP_POSTINGS_BACKEND", &cfg.Postings.Backend)
	setString("SP_POSTINGS_DATA_DIR", &cfg.Postings.DataDir)
	setString("SP_POSTINGS_BUCKET", &cfg.Postings.Bucket)
	setString("SP_POSTINGS_ENDPOINT", &cfg.Postings.Endpoint)
	setString("SP_POSTINGS_REGION", &cfg.Postings.Region)
	setString("SP_POSTINGS_ACCESS_KEY", &cfg.Postings.AccessKey)
	setString("SP_POSTINGS_SECRET_KEY", &cfg.Postings.SecretKey)
	setBool("SP_POSTINGS_USE_SSL", &cfg.Postings.UseSSL)

	setString("SP_TITLES_BACKEND", &cfg.Titles.Backend)
	setString("SP_TITLES_PATH", &cfg.Titles.Path)

	setFloat("SP_SEARCH_BODY_WEIGHT", &cfg.Search.BodyWeight)
	setFloat("SP_SEARCH_TITLE_WEIGHT", &cfg.Search.TitleWeight)
	setInt("SP_SEARCH_DEFAULT_LIMIT", &cfg.Search.DefaultLimit)

	setString("SP_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("SP_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("SP_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("SP_POSTGRES_USER", &cfg.Postgres.User)
	setString("SP_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("SP_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)

	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	setBool("SP_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("SP_REDIS_ADDR", &cfg.Redis.Addr)
	setString("SP_REDIS_PASSWORD", &cfg.Redis.Password)

	setString("SP_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("SP_LOGGING_FORMAT", &cfg.Logging.Format)

	setBool("SP_ANALYTICS_ENABLED", &cfg.Analytics.Enabled)
	setInt("SP_ANALYTICS_BATCH_SIZE", &cfg.Analytics.BatchSize)
	setInt("SP_ANALYTICS_PORT", &cfg.Analytics.Port)
}
