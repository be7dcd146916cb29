package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Detection DetectionConfig `yaml:"detection"`
	Explain   ExplainConfig   `yaml:"explain"`
	Worker    WorkerConfig    `yaml:"worker"`
}

type ServerConfig struct {
	Port     int    `yaml:"port" default:"8080"`
	LogLevel string `yaml:"log_level" default:"info"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" default:"5432"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
}

type EmbeddingConfig struct {
	BaseURL     string        `yaml:"base_url" default:"http://ollama:11434"`
	Model       string        `yaml:"model" default:"nomic-embed-text"`
	Dimension   int           `yaml:"dimension" default:"768"`
	Timeout     time.Duration `yaml:"timeout" default:"30s"`
	BatchSize   int           `yaml:"batch_size" default:"50"`
	Concurrency int           `yaml:"concurrency" default:"10"`
	RateLimit   float64       `yaml:"rate_limit" default:"50"`
}

type IndexConfig struct {
	Dir         string        `yaml:"dir" default:"/data/models"`
	LockTimeout time.Duration `yaml:"lock_timeout" default:"10s"`
}

type DetectionConfig struct {
	DistanceThreshold  float64 `yaml:"distance_threshold" default:"0.75"`
	MinNeighbors       int     `yaml:"min_neighbors" default:"5"`
	AnomalyThreshold   float64 `yaml:"anomaly_threshold" default:"0.7"`
	MLWeight           float64 `yaml:"ml_weight" default:"0.9"`
	HighRateThreshold  int     `yaml:"high_rate_threshold" default:"200"`
	LargeTransferBytes int64   `yaml:"large_transfer_bytes" default:"5000000"`
}

type ExplainConfig struct {
	BaseURL   string        `yaml:"base_url" default:"http://ollama:11434/v1"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model" default:"qwen2.5:3b"`
	MaxTokens int           `yaml:"max_tokens" default:"150"`
	Timeout   time.Duration `yaml:"timeout" default:"30s"`
}

type WorkerConfig struct {
	Concurrency int    `yaml:"concurrency" default:"4"`
	SpoolDir    string `yaml:"spool_dir"`
}

// Default returns a config with all defaults applied
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in default values for unset fields
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "http://ollama:11434"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "nomic-embed-text"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 768
	}
	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = 30 * time.Second
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 50
	}
	if c.Embedding.Concurrency == 0 {
		c.Embedding.Concurrency = 10
	}
	if c.Embedding.RateLimit == 0 {
		c.Embedding.RateLimit = 50
	}
	if c.Index.Dir == "" {
		c.Index.Dir = "/data/models"
	}
	if c.Index.LockTimeout == 0 {
		c.Index.LockTimeout = 10 * time.Second
	}
	if c.Detection.DistanceThreshold == 0 {
		c.Detection.DistanceThreshold = 0.75
	}
	if c.Detection.MinNeighbors == 0 {
		c.Detection.MinNeighbors = 5
	}
	if c.Detection.AnomalyThreshold == 0 {
		c.Detection.AnomalyThreshold = 0.7
	}
	if c.Detection.MLWeight == 0 {
		c.Detection.MLWeight = 0.9
	}
	if c.Detection.HighRateThreshold == 0 {
		c.Detection.HighRateThreshold = 200
	}
	if c.Detection.LargeTransferBytes == 0 {
		c.Detection.LargeTransferBytes = 5_000_000
	}
	if c.Explain.BaseURL == "" {
		c.Explain.BaseURL = "http://ollama:11434/v1"
	}
	if c.Explain.Model == "" {
		c.Explain.Model = "qwen2.5:3b"
	}
	if c.Explain.MaxTokens == 0 {
		c.Explain.MaxTokens = 150
	}
	if c.Explain.Timeout == 0 {
		c.Explain.Timeout = 30 * time.Second
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 4
	}
}

// Validate checks configuration for values the worker cannot run with
func (c *Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Detection.DistanceThreshold <= 0 {
		return fmt.Errorf("config: distance threshold must be positive, got %f", c.Detection.DistanceThreshold)
	}
	if c.Detection.MLWeight < 0 || c.Detection.MLWeight > 1 {
		return fmt.Errorf("config: ml weight must be in [0,1], got %f", c.Detection.MLWeight)
	}
	return nil
}

// Load reads a YAML config file and applies defaults on top.
// A missing path loads pure defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator-supplied config path
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyDefaults()
	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
