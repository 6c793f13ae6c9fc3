package config

import (
	"fmt"
	"os"
	"strconv"
)

// ServerConfig holds configuration for the HTTP API process.
type ServerConfig struct {
	ListenAddr string
	DBPath     string
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: envOrDefault("PARLEY_LISTEN_ADDR", ":8100"),
		DBPath:     envOrDefault("PARLEY_DB_PATH", "parley.db"),
	}
}

// WorkerConfig holds configuration for the dispatch worker process.
type WorkerConfig struct {
	DBPath        string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	SleepSeconds  int
}

// LoadWorkerConfig reads worker configuration from environment variables.
func LoadWorkerConfig() (WorkerConfig, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return WorkerConfig{}, fmt.Errorf("OPENAI_API_KEY is required in environment")
	}

	return WorkerConfig{
		DBPath:        envOrDefault("PARLEY_DB_PATH", "parley.db"),
		OpenAIAPIKey:  apiKey,
		OpenAIBaseURL: envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		SleepSeconds:  envIntOrDefault("PARLEY_WORKER_SLEEP_SECONDS", 1),
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
