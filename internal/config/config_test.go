package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("JWT_SECRET", "env-secret-long-enough")

	cfgPath := writeConfig(t, `
port: "8080"
logLevel: "info"
geminiAPIKey: "file-key"
jwtSecret: "file-secret"
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port = %q, want env override", cfg.Port)
	}
	if cfg.GeminiAPIKey != "env-key" {
		t.Fatalf("geminiAPIKey = %q, want env override", cfg.GeminiAPIKey)
	}
	if cfg.JWTSecret != "env-secret-long-enough" {
		t.Fatalf("jwtSecret = %q, want env override", cfg.JWTSecret)
	}
	if cfg.Provider != "gemini" {
		t.Fatalf("provider = %q, want default gemini", cfg.Provider)
	}
	if cfg.GenerationModel != "gemini-3-flash-preview" {
		t.Fatalf("generationModel = %q, want default", cfg.GenerationModel)
	}
	if cfg.RateLimitPerMinute != 60 {
		t.Fatalf("rateLimitPerMinute = %d, want default 60", cfg.RateLimitPerMinute)
	}
}

func TestValidateConfigRequiresGeminiKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfgPath := writeConfig(t, `
port: "8080"
jwtSecret: "file-secret"
`)
	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected error for missing gemini key")
	}
}

func TestValidateConfigOpenAICompat(t *testing.T) {
	cfgPath := writeConfig(t, `
port: "8080"
jwtSecret: "file-secret"
provider: "openai-compat"
openaiBaseURL: "http://localhost:8000/v1"
generationModel: "local-model"
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Provider != "openai-compat" {
		t.Fatalf("provider = %q", cfg.Provider)
	}
}

func TestValidateConfigRejectsUnknownProvider(t *testing.T) {
	cfgPath := writeConfig(t, `
port: "8080"
jwtSecret: "file-secret"
provider: "carrier-pigeon"
`)
	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
