package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultModel       = "claude-3-opus-20240229"
	defaultMaxTokens   = 4000
	defaultTemperature = 0.2
	defaultBaseURL     = "https://api.anthropic.com"
)

// Config carries everything the pipeline and the tool server need. It is
// resolved once in main and passed down explicitly; nothing reads the
// environment after this point.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	BaseURL     string
	DataDir     string // sandbox root for the tool server
}

func loadConfig() Config {
	// A missing .env is fine, the process environment still applies.
	_ = godotenv.Load()

	cfg := Config{
		APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		Model:       defaultModel,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		BaseURL:     defaultBaseURL,
		DataDir:     "./data",
	}

	if v := os.Getenv("MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTokens = n
		}
	}
	if v := os.Getenv("TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Temperature = f
		}
	}
	if v := os.Getenv("ANTHROPIC_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("PROMPTBATCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	return cfg
}
