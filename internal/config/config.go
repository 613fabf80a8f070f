// Package config provides configuration loading, validation, and management
// for the SheldonBot application. It handles reading from YAML files,
// setting default values, and validating configuration parameters.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/viper"
)

// Config defines the application configuration parameters for all components
// of the SheldonBot system, including logging, Telegram, AI integration,
// database, scheduled tasks, and the engagement engine.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Engagement EngagementConfig `mapstructure:"engagement"`
}

// LoggerConfig holds settings for the application logger.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds settings for the Telegram connection. BotInfo holds
// the bot's own identity, resolved at startup via GetMe rather than read from
// the config file.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`

	BotInfo *models.User `mapstructure:"-"`
}

// GeminiConfig holds settings for the Gemini API client.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"             validate:"required"`
	ModelName         string  `mapstructure:"model_name"          validate:"required"`
	ImageModelName    string  `mapstructure:"image_model_name"    validate:"required"`
	Temperature       float32 `mapstructure:"temperature"         validate:"gte=0,lte=2"`
	MaxRetries        int     `mapstructure:"max_retries"         validate:"gte=0,lte=10"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" validate:"gte=1"`
}

// DatabaseConfig holds settings for the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SchedulerConfig holds the cron schedules for background maintenance tasks,
// keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]string `mapstructure:"tasks"`
}

// EngagementConfig holds tunables for the proactive engagement engine.
type EngagementConfig struct {
	CheckIntervalSeconds int `mapstructure:"check_interval_seconds" validate:"gte=1"`
	StartupGraceSeconds  int `mapstructure:"startup_grace_seconds"  validate:"gte=0"`
	PokeMinMinutes       int `mapstructure:"poke_min_minutes"       validate:"gte=1"`
	PokeMaxMinutes       int `mapstructure:"poke_max_minutes"       validate:"gtefield=PokeMinMinutes"`
	ImageDailyLimit      int `mapstructure:"image_daily_limit"      validate:"gte=1"`
}

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. The YAML file at configPath (optional)
// 3. BOT_* environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine, defaults plus environment take over.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every configuration key with its default value.
// Registration matters beyond defaults: AutomaticEnv only surfaces BOT_*
// variables for keys viper already knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("telegram.token", "")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.image_model_name", "imagen-3.0-generate-002")
	v.SetDefault("gemini.temperature", 0.7)
	v.SetDefault("gemini.max_retries", 3)
	v.SetDefault("gemini.retry_delay_seconds", 2)

	v.SetDefault("database.path", "storage.db")

	v.SetDefault("scheduler.tasks", map[string]string{
		"sql_maintenance":   "0 4 * * *",
		"image_log_cleanup": "30 4 * * *",
	})

	v.SetDefault("engagement.check_interval_seconds", 60)
	v.SetDefault("engagement.startup_grace_seconds", 10)
	v.SetDefault("engagement.poke_min_minutes", 90)
	v.SetDefault("engagement.poke_max_minutes", 2880)
	v.SetDefault("engagement.image_daily_limit", 10)
}
