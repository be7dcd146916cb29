package config

import (
	"os"
	"strconv"
)

// LoadFromEnv applies SECLOG_* environment overrides on top of a config
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("SECLOG_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if logLevel := os.Getenv("SECLOG_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	// Database
	if host := os.Getenv("SECLOG_DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("SECLOG_DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Database.Port = p
		}
	}
	if name := os.Getenv("SECLOG_DB_NAME"); name != "" {
		cfg.Database.Database = name
	}
	if user := os.Getenv("SECLOG_DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if pass := os.Getenv("SECLOG_DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}

	// Model providers
	if base := os.Getenv("OLLAMA_BASE_URL"); base != "" {
		cfg.Embedding.BaseURL = base
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.Explain.BaseURL = base
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Explain.APIKey = key
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.Explain.Model = model
	}

	// Index snapshot location
	if dir := os.Getenv("MODEL_DIR"); dir != "" {
		cfg.Index.Dir = dir
	}

	if dir := os.Getenv("SECLOG_SPOOL_DIR"); dir != "" {
		cfg.Worker.SpoolDir = dir
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
