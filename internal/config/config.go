package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	ProfileBackendSQLite = "sqlite"
	ProfileBackendFile   = "file"

	defaultDatabasePath    = "data/fitness.db"
	defaultProfileFilePath = "data/profile.json"
	defaultHTTPTimeout     = 60 * time.Second
	defaultOnboardingDelay = 1500 * time.Millisecond
	defaultPort            = "8080"
	defaultPlanRateEvery   = 10 * time.Second
	defaultPlanRateBurst   = 3
)

// Config holds the configuration for the application.
type Config struct {
	PlanServiceURL string `toml:"plan_service_url"`

	// Local persistence
	DatabasePath    string `toml:"database_path"`
	ProfileBackend  string `toml:"profile_backend"`
	ProfileFilePath string `toml:"profile_file_path"`

	HTTPTimeout     time.Duration `toml:"-"`
	OnboardingDelay time.Duration `toml:"-"`

	// Logging
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
	LogJSON  bool   `toml:"log_json"`

	// Telegram Config
	TelegramBotToken       string  `toml:"telegram_bot_token"`
	TelegramWebhookURL     string  `toml:"telegram_webhook_url"`
	TelegramAllowedUserIDs []int64 `toml:"telegram_allowed_user_ids"`
	Port                   string  `toml:"port"`

	// Per-user limit on plan commands: one token every PlanRateEvery, up to PlanRateBurst.
	PlanRateEvery time.Duration `toml:"-"`
	PlanRateBurst int           `toml:"plan_rate_burst"`
}

// fileConfig mirrors Config for TOML decoding; durations are written as strings ("45s").
type fileConfig struct {
	Config
	HTTPTimeout     string `toml:"http_timeout"`
	OnboardingDelay string `toml:"onboarding_delay"`
	PlanRateEvery   string `toml:"plan_rate_every"`
}

// NewFromEnv creates a new Config object from a .env file, an optional TOML file
// named by FITNESS_CONFIG and the process environment, in increasing precedence.
func NewFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		DatabasePath:    defaultDatabasePath,
		ProfileBackend:  ProfileBackendSQLite,
		ProfileFilePath: defaultProfileFilePath,
		HTTPTimeout:     defaultHTTPTimeout,
		OnboardingDelay: defaultOnboardingDelay,
		LogLevel:        "info",
		Port:            defaultPort,
		PlanRateEvery:   defaultPlanRateEvery,
		PlanRateBurst:   defaultPlanRateBurst,
	}

	if path := os.Getenv("FITNESS_CONFIG"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.PlanServiceURL == "" {
		return nil, fmt.Errorf("PLAN_SERVICE_URL environment variable not set")
	}
	cfg.PlanServiceURL = strings.TrimRight(cfg.PlanServiceURL, "/")

	switch cfg.ProfileBackend {
	case ProfileBackendSQLite, ProfileBackendFile:
	default:
		return nil, fmt.Errorf("unknown PROFILE_BACKEND %q (expected %q or %q)",
			cfg.ProfileBackend, ProfileBackendSQLite, ProfileBackendFile)
	}

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	fc := fileConfig{Config: *cfg}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	var err error
	if fc.HTTPTimeout != "" {
		if fc.Config.HTTPTimeout, err = time.ParseDuration(fc.HTTPTimeout); err != nil {
			return fmt.Errorf("invalid http_timeout in %s: %w", path, err)
		}
	}
	if fc.OnboardingDelay != "" {
		if fc.Config.OnboardingDelay, err = time.ParseDuration(fc.OnboardingDelay); err != nil {
			return fmt.Errorf("invalid onboarding_delay in %s: %w", path, err)
		}
	}

	if fc.PlanRateEvery != "" {
		if fc.Config.PlanRateEvery, err = time.ParseDuration(fc.PlanRateEvery); err != nil {
			return fmt.Errorf("invalid plan_rate_every in %s: %w", path, err)
		}
	}

	*cfg = fc.Config
	return nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("PLAN_SERVICE_URL", &cfg.PlanServiceURL)
	setString("DATABASE_PATH", &cfg.DatabasePath)
	setString("PROFILE_BACKEND", &cfg.ProfileBackend)
	setString("PROFILE_FILE_PATH", &cfg.ProfileFilePath)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LOG_FILE", &cfg.LogFile)
	setString("TELEGRAM_BOT_TOKEN", &cfg.TelegramBotToken)
	setString("TELEGRAM_WEBHOOK_URL", &cfg.TelegramWebhookURL)
	setString("PORT", &cfg.Port)

	if v := os.Getenv("LOG_JSON"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_JSON value %q: %w", v, err)
		}
		cfg.LogJSON = b
	}

	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid HTTP_TIMEOUT value %q: %w", v, err)
		}
		cfg.HTTPTimeout = d
	}

	if v := os.Getenv("ONBOARDING_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ONBOARDING_DELAY value %q: %w", v, err)
		}
		cfg.OnboardingDelay = d
	}

	if v := os.Getenv("PLAN_RATE_EVERY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PLAN_RATE_EVERY value %q: %w", v, err)
		}
		cfg.PlanRateEvery = d
	}

	if v := os.Getenv("PLAN_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PLAN_RATE_BURST value %q: %w", v, err)
		}
		cfg.PlanRateBurst = n
	}

	if v := os.Getenv("TELEGRAM_ALLOW_USER_IDS"); v != "" {
		ids, err := parseUserIDs(v)
		if err != nil {
			return err
		}
		cfg.TelegramAllowedUserIDs = ids
	}

	return nil
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ALLOW_USER_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
