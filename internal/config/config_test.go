package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("GROVLI_API_URL", "https://api.grovli.test")
	t.Setenv("GROVLI_DATA_DIR", t.TempDir())
	t.Setenv("GROVLI_CACHE_TTL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIBaseURL != "https://api.grovli.test" {
		t.Errorf("Expected API base URL to be set, got '%s'", cfg.APIBaseURL)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("Expected cache TTL override of 5m, got %v", cfg.CacheTTL)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("Expected default request timeout of 10s, got %v", cfg.RequestTimeout)
	}
	if cfg.RetryCount != 3 {
		t.Errorf("Expected default retry count of 3, got %d", cfg.RetryCount)
	}
	if len(cfg.PublicPathPrefixes) != 1 || cfg.PublicPathPrefixes[0] != "/api/webhook/" {
		t.Errorf("Expected default public path prefixes, got %v", cfg.PublicPathPrefixes)
	}
}

func TestLoadRequiresBaseURL(t *testing.T) {
	t.Setenv("GROVLI_API_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Expected an error when GROVLI_API_URL is unset")
	}
}

func TestTelegramEnabled(t *testing.T) {
	cfg := &Config{}
	if cfg.TelegramEnabled() {
		t.Error("Expected telegram to be disabled without credentials")
	}

	cfg.TelegramBotToken = "token"
	cfg.TelegramChatID = 42
	if !cfg.TelegramEnabled() {
		t.Error("Expected telegram to be enabled with token and chat id")
	}
}
