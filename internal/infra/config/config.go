package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken     string // Optional: the bot is disabled when empty
	DatabaseURL       string
	AdminTelegramID   int64
	GuildID           int64 // Guild served by the Telegram bot
	LogLevel          string
	Environment       string
	NotifyCronSpec    string // How often respawn windows are evaluated
	PatternsFile      string // Optional YAML file with per-guild log templates
	DiscordWebhookURL string // Optional webhook notification sink
	LogTimezone       *time.Location
	GameDB            GameDBConfig
}

// GameDBConfig describes the read-only connection to the live game server database.
// All fields are optional; see Configured.
type GameDBConfig struct {
	Driver       string        `env:"GAME_DB_DRIVER" envDefault:"mysql"`
	Host         string        `env:"GAME_DB_HOST"`
	Port         int           `env:"GAME_DB_PORT" envDefault:"3306"`
	User         string        `env:"GAME_DB_USER"`
	Password     string        `env:"GAME_DB_PASSWORD"`
	Name         string        `env:"GAME_DB_NAME"`
	PoolSize     int           `env:"GAME_DB_POOL_SIZE" envDefault:"4"`
	PollInterval time.Duration `env:"GAME_DB_POLL_INTERVAL" envDefault:"60s"`
	PollLookback time.Duration `env:"GAME_DB_POLL_LOOKBACK" envDefault:"30m"`
	GuildID      int64         `env:"GAME_DB_GUILD_ID"` // Guild credited with feed kills; defaults to GUILD_ID
}

// Configured reports whether enough settings are present to reach the game database.
// An unconfigured game database is a valid state that disables polling.
func (c GameDBConfig) Configured() bool {
	return c.Host != "" && c.User != "" && c.Name != ""
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
	if adminIDStr == "" {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
	}
	cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
	}

	cfg.GuildID = 1
	if guildIDStr := os.Getenv("GUILD_ID"); guildIDStr != "" {
		cfg.GuildID, err = strconv.ParseInt(guildIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GUILD_ID: %w", err)
		}
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.NotifyCronSpec = os.Getenv("NOTIFY_CRON_SPEC")
	if cfg.NotifyCronSpec == "" {
		cfg.NotifyCronSpec = "@every 30s"
	}

	cfg.PatternsFile = os.Getenv("PATTERNS_FILE")
	cfg.DiscordWebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")

	cfg.LogTimezone = time.UTC
	if tz := os.Getenv("LOG_TIMEZONE"); tz != "" {
		cfg.LogTimezone, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_TIMEZONE: %w", err)
		}
	}

	if err := env.Parse(&cfg.GameDB); err != nil {
		return nil, fmt.Errorf("parse game database settings: %w", err)
	}
	if cfg.GameDB.PoolSize <= 0 {
		return nil, fmt.Errorf("GAME_DB_POOL_SIZE must be positive, got %d", cfg.GameDB.PoolSize)
	}
	if cfg.GameDB.GuildID == 0 {
		cfg.GameDB.GuildID = cfg.GuildID
	}

	return cfg, nil
}
