package config

import (
	"fmt"
	"os"
)

const (
	defaultPort          = "3000"
	defaultAssemblyAIURL = "wss://streaming.assemblyai.com/v3/ws"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// Config holds the process-wide configuration. It is read once at startup
// and treated as read-only afterwards; sessions receive it by value.
type Config struct {
	Port string

	// AssemblyAI streaming transcription service.
	AssemblyAIURL    string
	AssemblyAIAPIKey string

	// OpenAI, used by the transcript analysis endpoint.
	OpenAIAPIKey string
	OpenAIModel  string
}

// Load builds a Config from environment variables, applying defaults for
// optional values. Callers are expected to load a .env file beforehand if
// they want one.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", defaultPort),
		AssemblyAIURL:    getEnv("ASSEMBLYAI_WS_URL", defaultAssemblyAIURL),
		AssemblyAIAPIKey: os.Getenv("ASSEMBLYAI_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      getEnv("OPENAI_MODEL", defaultOpenAIModel),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every required value is present.
func (c *Config) Validate() error {
	if c.AssemblyAIAPIKey == "" {
		return fmt.Errorf("ASSEMBLYAI_API_KEY must be set")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if c.AssemblyAIURL == "" {
		return fmt.Errorf("ASSEMBLYAI_WS_URL must not be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
