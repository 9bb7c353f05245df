package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode `env:"CHATRELAY_MODE" envDefault:"local"`

	Port string `env:"PORT" envDefault:"8080"`

	// Gemini API backend, used in local mode
	GeminiAPIKey string `env:"GEMINI_API_KEY"`

	// Vertex AI backend, used in gcp mode
	GCPProjectID string `env:"CHATRELAY_GCP_PROJECT"`
	GCPLocation  string `env:"CHATRELAY_GCP_LOCATION" envDefault:"us-central1"`

	ModelName  string `env:"CHATRELAY_MODEL_NAME" envDefault:"gemini-2.5-flash"`
	UseMockLLM string `env:"CHATRELAY_USE_MOCK_LLM"` // empty = mock in local mode

	// Empty means the session store calls the relay in-process.
	GatewayURL string `env:"CHATRELAY_GATEWAY_URL"`

	RequestTimeout  time.Duration `env:"CHATRELAY_REQUEST_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"CHATRELAY_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	PlaceholderText string   `env:"CHATRELAY_PLACEHOLDER_TEXT" envDefault:"Backend not reachable"`
	InitialThreads  []string `env:"CHATRELAY_INITIAL_THREADS" envDefault:"Project Ideas,Python Help" envSeparator:","`

	LogLevel string `env:"CHATRELAY_LOG_LEVEL" envDefault:"info"`
}

// MockLLM reports whether the mock client should be used.
func (c *Config) MockLLM() bool {
	if v, err := strconv.ParseBool(c.UseMockLLM); err == nil {
		return v
	}
	return c.Mode == ModeLocal
}

// Parse reads an optional .env file and the environment without validating.
// Clients that never call the LLM themselves use it directly.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Load is Parse followed by Validate.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLocal, ModeGCP:
	default:
		return fmt.Errorf("CHATRELAY_MODE must be %q or %q, got %q", ModeLocal, ModeGCP, c.Mode)
	}

	if c.UseMockLLM != "" {
		if _, err := strconv.ParseBool(c.UseMockLLM); err != nil {
			return fmt.Errorf("CHATRELAY_USE_MOCK_LLM: %w", err)
		}
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("CHATRELAY_REQUEST_TIMEOUT must be positive")
	}

	if c.MockLLM() {
		return nil
	}
	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		return fmt.Errorf("CHATRELAY_GCP_PROJECT must be set in gcp mode")
	}
	if c.Mode == ModeLocal && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY must be set when the mock LLM is disabled")
	}
	return nil
}

// ListenAddr is the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return ":" + c.Port
}
