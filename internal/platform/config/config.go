package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Storage backends for subscriber state.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	PublicURL string `env:"PUBLIC_URL"`

	UpstreamURL    string        `env:"UPSTREAM_URL"`
	FetchInterval  time.Duration `env:"FETCH_INTERVAL" default:"60s"`
	FetchTimeout   time.Duration `env:"FETCH_TIMEOUT" default:"10s"`
	NoiseThreshold int64         `env:"NOISE_THRESHOLD" default:"10"`

	CandidateList       string        `env:"CANDIDATES" default:"Joe Biden,Donald Trump"`
	DefaultWatchlist    string        `env:"DEFAULT_WATCHLIST" default:"Arizona,Georgia,Nevada,North Carolina,Pennsylvania"`
	DefaultPollInterval time.Duration `env:"DEFAULT_POLL_INTERVAL" default:"0s"`

	StorageBackend string `env:"STORAGE_BACKEND" default:"memory"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisURL       string `env:"REDIS_URL"`

	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramSendRate float64 `env:"TELEGRAM_SEND_RATE" default:"25"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC" default:"electionwatch.reports"`
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

// Candidates returns the configured candidate names in order.
func (c *Config) Candidates() []string {
	return splitList(c.CandidateList)
}

func (c *Config) Watchlist() []string {
	return splitList(c.DefaultWatchlist)
}

func (c *Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func validate(cfg *Config) error {
	if cfg.UpstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	u, err := url.Parse(cfg.UpstreamURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("UPSTREAM_URL must be an absolute http(s) URL, got %q", cfg.UpstreamURL)
	}

	if cfg.PublicURL != "" {
		p, err := url.Parse(cfg.PublicURL)
		if err != nil || (p.Scheme != "http" && p.Scheme != "https") || p.Host == "" {
			return fmt.Errorf("PUBLIC_URL must be an absolute http(s) URL, got %q", cfg.PublicURL)
		}
	}

	if cfg.FetchInterval <= 0 {
		return errors.New("FETCH_INTERVAL must be positive")
	}
	if cfg.FetchTimeout <= 0 {
		return errors.New("FETCH_TIMEOUT must be positive")
	}
	if cfg.NoiseThreshold < 0 {
		return errors.New("NOISE_THRESHOLD must not be negative")
	}
	if cfg.DefaultPollInterval < 0 {
		return errors.New("DEFAULT_POLL_INTERVAL must not be negative")
	}

	if n := len(cfg.Candidates()); n < 2 {
		return fmt.Errorf("CANDIDATES must name at least two candidates, got %d", n)
	}

	switch cfg.StorageBackend {
	case StorageMemory:
	case StorageRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required for STORAGE_BACKEND=redis")
		}
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for STORAGE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of memory, redis, postgres, got %q", cfg.StorageBackend)
	}

	if cfg.AppEnv == "production" && cfg.DatabaseURL != "" {
		if err := validateSSLMode(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	if cfg.TelegramBotToken != "" && cfg.TelegramSendRate <= 0 {
		return errors.New("TELEGRAM_SEND_RATE must be positive")
	}
	if cfg.KafkaBrokers != "" && cfg.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" && !slices.Contains(out, part) {
			out = append(out, part)
		}
	}
	return out
}
