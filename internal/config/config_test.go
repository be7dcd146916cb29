package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	t.Run("fills detection defaults", func(t *testing.T) {
		cfg := &Config{}
		cfg.ApplyDefaults()

		assert.Equal(t, 768, cfg.Embedding.Dimension)
		assert.Equal(t, 50, cfg.Embedding.BatchSize)
		assert.Equal(t, 10, cfg.Embedding.Concurrency)
		assert.Equal(t, 0.75, cfg.Detection.DistanceThreshold)
		assert.Equal(t, 0.7, cfg.Detection.AnomalyThreshold)
		assert.Equal(t, 0.9, cfg.Detection.MLWeight)
		assert.Equal(t, 200, cfg.Detection.HighRateThreshold)
		assert.Equal(t, int64(5_000_000), cfg.Detection.LargeTransferBytes)
		assert.Equal(t, 10*time.Second, cfg.Index.LockTimeout)
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		cfg := &Config{}
		cfg.Embedding.Dimension = 384
		cfg.ApplyDefaults()
		assert.Equal(t, 384, cfg.Embedding.Dimension)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("defaults pass validation", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})

	t.Run("rejects ml weight above one", func(t *testing.T) {
		cfg := Default()
		cfg.Detection.MLWeight = 1.5
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ml weight")
	})

	t.Run("rejects negative dimension", func(t *testing.T) {
		cfg := Default()
		cfg.Embedding.Dimension = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := []byte("embedding:\n  dimension: 384\ndetection:\n  anomaly_threshold: 0.5\n")
		require.NoError(t, os.WriteFile(path, data, 0600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 384, cfg.Embedding.Dimension)
		assert.Equal(t, 0.5, cfg.Detection.AnomalyThreshold)
		// defaults still applied for the rest
		assert.Equal(t, 0.75, cfg.Detection.DistanceThreshold)
	})

	t.Run("empty path loads defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 768, cfg.Embedding.Dimension)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("overrides provider urls", func(t *testing.T) {
		t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")
		t.Setenv("MODEL_DIR", "/tmp/models")

		cfg := Default()
		LoadFromEnv(cfg)
		assert.Equal(t, "http://localhost:11434", cfg.Embedding.BaseURL)
		assert.Equal(t, "/tmp/models", cfg.Index.Dir)
	})
}
