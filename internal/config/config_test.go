package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresFetcherWorkers(t *testing.T) {
	// FETCHER_WORKERS unset: Load must refuse to start.
	t.Setenv("FETCHER_WORKERS", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCHER_WORKERS")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FETCHER_WORKERS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.FetcherWorkers)
	assert.Equal(t, 3, cfg.FetcherMaxRetries)
	assert.Equal(t, 30*time.Second, cfg.FetcherTimeout)
	assert.Equal(t, "https://reyestr.court.gov.ua", cfg.RegistryBaseURL)
	assert.Equal(t, "/RSS", cfg.RSSEndpoint)
	assert.Equal(t, 10*time.Minute, cfg.DiscoveryInterval)
	assert.Equal(t, 24*time.Hour, cfg.ReconciliationInterval)
	assert.Equal(t, 512, cfg.EmbeddingChunkSize)
	assert.Equal(t, "local", cfg.StorageType)
	assert.True(t, cfg.KafkaEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FETCHER_WORKERS", "2")
	t.Setenv("DISCOVERY_INTERVAL", "1m")
	t.Setenv("STORAGE_TYPE", "s3")
	t.Setenv("S3_BUCKET", "raw-docs")
	t.Setenv("KAFKA_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.DiscoveryInterval)
	assert.Equal(t, "s3", cfg.StorageType)
	assert.Equal(t, "raw-docs", cfg.S3Bucket)
	assert.False(t, cfg.KafkaEnabled)
}

func TestValidateRejectsUnknownStorage(t *testing.T) {
	t.Setenv("FETCHER_WORKERS", "1")
	t.Setenv("STORAGE_TYPE", "ftp")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_TYPE")
}

func TestLogLevel(t *testing.T) {
	t.Setenv("FETCHER_WORKERS", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())

	for env, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		t.Setenv("REGISTRAR_LOG_LEVEL", env)
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, want, cfg.SlogLevel())
	}

	t.Setenv("REGISTRAR_LOG_LEVEL", "verbose")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REGISTRAR_LOG_LEVEL")
}

func TestValidateConfidenceThresholdRange(t *testing.T) {
	t.Setenv("FETCHER_WORKERS", "1")
	t.Setenv("PARSER_CONFIDENCE_THRESHOLD", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARSER_CONFIDENCE_THRESHOLD")
}
