package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`
}

type StorageConfig struct {
	DSN string `mapstructure:"dsn" validate:"required"`
}

type WelcomeConfig struct {
	DefaultButtonURL string `mapstructure:"default_button_url" validate:"required|fullUrl"`
}

type StatsConfig struct {
	Timezone string `mapstructure:"timezone" validate:"required"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	SizeMB  int           `mapstructure:"size_mb" validate:"min:0"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type HTTPConfig struct {
	// Addr of the health server, empty disables it
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

type KeepaliveConfig struct {
	// PingURL is requested every Interval, empty disables pinging
	PingURL  string        `mapstructure:"ping_url"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Welcome   WelcomeConfig   `mapstructure:"welcome"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Cache     CacheConfig     `mapstructure:"cache"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Keepalive KeepaliveConfig `mapstructure:"keepalive"`
}

var envBindings = map[string][]string{
	"telegram.token":             {"TELEGRAM_BOT_TOKEN", "BOT_TOKEN"},
	"storage.dsn":                {"DATABASE_URL"},
	"welcome.default_button_url": {"WELCOME_DEFAULT_BUTTON_URL"},
	"stats.timezone":             {"STATS_TIMEZONE"},
	"cache.enabled":              {"CACHE_ENABLED"},
	"cache.size_mb":              {"CACHE_SIZE_MB"},
	"cache.ttl":                  {"CACHE_TTL"},
	"http.addr":                  {"HTTP_ADDR"},
	"http.metrics_enabled":       {"METRICS_ENABLED"},
	"keepalive.ping_url":         {"KEEPALIVE_PING_URL"},
	"keepalive.interval":         {"KEEPALIVE_INTERVAL"},
	"keepalive.timeout":          {"KEEPALIVE_TIMEOUT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("welcome.default_button_url", "https://t.me/telegram")
	v.SetDefault("stats.timezone", "UTC")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size_mb", 4)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.metrics_enabled", true)
	v.SetDefault("keepalive.interval", 5*time.Minute)
	v.SetDefault("keepalive.timeout", 10*time.Second)
}

// Load reads .env, the optional YAML file at path and the environment,
// in increasing order of precedence, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("config: Failed to load .env file", "error", err)
	} else {
		slog.Debug("config: Environment variables loaded from .env file")
	}

	v := viper.New()
	setDefaults(v)

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	if err := v.BindEnv("database_path", "DATABASE_PATH"); err != nil {
		return nil, fmt.Errorf("failed to bind database_path: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Debug("config: Config file loaded", "path", v.ConfigFileUsed())
	}

	// legacy DATABASE_PATH names a plain sqlite file
	if v.GetString("storage.dsn") == "" {
		if dbPath := v.GetString("database_path"); dbPath != "" {
			v.Set("storage.dsn", "sqlite://"+dbPath)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return &conf, nil
}

// Validate checks every section and the time zone name
func (c *Config) Validate() error {
	sections := map[string]any{
		"telegram": &c.Telegram,
		"storage":  &c.Storage,
		"welcome":  &c.Welcome,
		"stats":    &c.Stats,
		"cache":    &c.Cache,
	}

	var problems []string
	for name, section := range sections {
		v := validate.Struct(section)
		if !v.Validate() {
			problems = append(problems, fmt.Sprintf("%s: %s", name, v.Errors.One()))
		}
	}

	if c.Stats.Timezone != "" {
		if _, err := time.LoadLocation(c.Stats.Timezone); err != nil {
			problems = append(problems, fmt.Sprintf("stats: unknown timezone %q", c.Stats.Timezone))
		}
	}

	if c.Keepalive.PingURL != "" && c.Keepalive.Interval <= 0 {
		problems = append(problems, "keepalive: interval must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}

// Location returns the time zone used for day boundaries of the stats
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Stats.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
