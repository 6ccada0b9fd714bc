package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	ProviderBaseURL string `env:"PROVIDER_BASE_URL"`
	ProviderAPIKey  string `env:"PROVIDER_API_KEY"`

	SeasonID string `env:"SEASON_ID"`

	SessionCreateTimeout  time.Duration `env:"SESSION_CREATE_TIMEOUT" default:"30s"`
	ComboWindow           time.Duration `env:"COMBO_WINDOW" default:"5s"`
	HealthSampleInterval  time.Duration `env:"HEALTH_SAMPLE_INTERVAL" default:"5s"`
	ReconnectInterval     time.Duration `env:"RECONNECT_INTERVAL" default:"5s"`
	MaxReconnectAttempts  int           `env:"MAX_RECONNECT_ATTEMPTS" default:"5"`
	PresenceSyncInterval  time.Duration `env:"PRESENCE_SYNC_INTERVAL" default:"10s"`
	RankRefreshInterval   time.Duration `env:"RANK_REFRESH_INTERVAL" default:"30s"`
	OrphanSessionMaxAge   time.Duration `env:"ORPHAN_SESSION_MAX_AGE" default:"5m"`
	MaxClientsPerSession  int           `env:"MAX_CLIENTS_PER_SESSION" default:"5000"`
	CorrectionRatePerSec  float64       `env:"CORRECTION_RATE_PER_SEC" default:"1"`
	CorrectionRateBurst   int           `env:"CORRECTION_RATE_BURST" default:"5"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL":      cfg.DatabaseURL,
		"REDIS_URL":         cfg.RedisURL,
		"PROVIDER_BASE_URL": cfg.ProviderBaseURL,
		"SEASON_ID":         cfg.SeasonID,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.MaxReconnectAttempts < 1 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must be >= 1, got %d", cfg.MaxReconnectAttempts)
	}
	if cfg.ComboWindow <= 0 {
		return fmt.Errorf("COMBO_WINDOW must be positive, got %s", cfg.ComboWindow)
	}

	return nil
}
