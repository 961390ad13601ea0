package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location relative to the working directory.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// DatabaseURL is optional. When empty the server keeps all state in
	// process memory, which is enough for development.
	DatabaseURL string `yaml:"databaseURL"`

	// RedisAddr is optional. When empty preferences fall back to memory
	// and rate limiting is disabled.
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	JWTSecret string `yaml:"jwtSecret"`

	// Provider is "gemini" (default) or "openai-compat".
	Provider        string `yaml:"provider"`
	GeminiAPIKey    string `yaml:"geminiAPIKey"`
	GenerationModel string `yaml:"generationModel"`
	OpenAIBaseURL   string `yaml:"openaiBaseURL"`
	OpenAIAPIKey    string `yaml:"openaiAPIKey"`

	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("ADVISOR_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Provider == "" {
		cfg.Provider = "gemini"
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = "gemini-3-flash-preview"
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 60
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	switch cfg.Provider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return errors.New("config: geminiAPIKey is required (set in config.yaml or GEMINI_API_KEY)")
		}
	case "openai-compat":
		if cfg.OpenAIBaseURL == "" {
			return errors.New("config: openaiBaseURL is required (set in config.yaml or OPENAI_BASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown provider %q", cfg.Provider)
	}
	return nil
}
