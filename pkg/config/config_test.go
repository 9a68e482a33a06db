package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(6_348_910), cfg.Index.CollectionSize)
	assert.Equal(t, int64(1_999_998), cfg.Postings.BlockSize)
	assert.Equal(t, "local", cfg.Postings.Backend)
	assert.Equal(t, 100, cfg.Search.DefaultLimit)
	assert.Equal(t, 5, cfg.Search.CandidateMultiplier)
	assert.InDelta(t, 0.6, cfg.Search.BodyWeight, 1e-12)
	assert.InDelta(t, 0.4, cfg.Search.TitleWeight, 1e-12)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
index:
  collectionSize: 10
postings:
  backend: minio
  bucket: postings
  blockSize: 64
search:
  defaultLimit: 20
  maxResults: 200
  channelTimeout: 2s
titles:
  backend: redis
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("SP_SEARCH_TITLE_WEIGHT", "0.25")
	t.Setenv("SP_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(10), cfg.Index.CollectionSize)
	assert.Equal(t, "minio", cfg.Postings.Backend)
	assert.Equal(t, int64(64), cfg.Postings.BlockSize)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 2*time.Second, cfg.Search.ChannelTimeout)
	assert.Equal(t, "redis", cfg.Titles.Backend)
	assert.InDelta(t, 0.25, cfg.Search.TitleWeight, 1e-12)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"collection size", func(c *Config) { c.Index.CollectionSize = 0 }},
		{"backend", func(c *Config) { c.Postings.Backend = "gcs" }},
		{"bucket", func(c *Config) { c.Postings.Backend = "s3"; c.Postings.Bucket = "" }},
		{"block size", func(c *Config) { c.Postings.BlockSize = 0 }},
		{"titles backend", func(c *Config) { c.Titles.Backend = "pickle" }},
		{"limits", func(c *Config) { c.Search.MaxResults = 1 }},
		{"multiplier", func(c *Config) { c.Search.CandidateMultiplier = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDevelopmentConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "search-events", cfg.Kafka.Topics.SearchEvents)
	assert.Equal(t, 100, cfg.Analytics.BatchSize)
	assert.Equal(t, "title:", cfg.Titles.KeyPrefix)
}
