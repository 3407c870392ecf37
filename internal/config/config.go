package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the configuration for the Grovli client.
//
// The duration and count fields are product tuning values carried over as
// defaults; every one can be overridden through the environment.
type Config struct {
	// APIBaseURL is the backend base URL. All endpoint paths are relative to it.
	APIBaseURL string `env:"GROVLI_API_URL"`

	// UserID is sent as the user-id header on domain endpoints.
	UserID string `env:"GROVLI_USER_ID"`

	// DataDir holds the local cache, token files and the durable store.
	// Defaults to <user config dir>/grovli when empty.
	DataDir string `env:"GROVLI_DATA_DIR"`

	// PublicPathPrefixes are endpoint prefixes exempt from the credential
	// requirement (e.g. webhook receivers).
	PublicPathPrefixes []string `env:"GROVLI_PUBLIC_PATHS" envSeparator:"," envDefault:"/api/webhook/"`

	CacheTTL        time.Duration `env:"GROVLI_CACHE_TTL"        envDefault:"10m"`
	RequestTimeout  time.Duration `env:"GROVLI_REQUEST_TIMEOUT"  envDefault:"10s"`
	DedupeInterval  time.Duration `env:"GROVLI_DEDUPE_INTERVAL"  envDefault:"5s"`
	RefreshInterval time.Duration `env:"GROVLI_REFRESH_INTERVAL" envDefault:"30s"`
	RetryCount      int           `env:"GROVLI_RETRY_COUNT"      envDefault:"3"`
	RetryInterval   time.Duration `env:"GROVLI_RETRY_INTERVAL"   envDefault:"2s"`

	// Generation status polling.
	PollInterval    time.Duration `env:"GROVLI_POLL_INTERVAL"     envDefault:"3s"`
	PollMaxFailures int           `env:"GROVLI_POLL_MAX_FAILURES" envDefault:"8"`

	ChatSessionTTL  time.Duration `env:"GROVLI_CHAT_SESSION_TTL"     envDefault:"30m"`
	LocalStoreWatch time.Duration `env:"GROVLI_STORE_WATCH_INTERVAL" envDefault:"1s"`

	// Telegram Config (optional; enables the plan-ready Telegram sink).
	TelegramBotToken string `env:"GROVLI_TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `env:"GROVLI_TELEGRAM_CHAT_ID"`
}

// Load creates a new Config object from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("GROVLI_API_URL environment variable not set")
	}

	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user config dir: %w", err)
		}
		cfg.DataDir = filepath.Join(base, "grovli")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	return cfg, nil
}

// TelegramEnabled reports whether the optional Telegram sink is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}
