package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"8080"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`
	Timezone string `env:"TIMEZONE"  envDefault:"UTC"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"file" validate:"oneof=file postgres"`
	DataDir       string `env:"DATA_DIR"       envDefault:"./data" validate:"required_if=StorageDriver file"`
	DatabaseURL   string `env:"DATABASE_URL"                       validate:"required_if=StorageDriver postgres"`

	WebhookURL        string  `env:"WEBHOOK_URL"          validate:"omitempty,url"`
	WebhookRatePerSec float64 `env:"WEBHOOK_RATE_PER_SEC" envDefault:"5" validate:"gt=0"`

	EmailTransport string `env:"EMAIL_TRANSPORT" validate:"omitempty,oneof=smtp resend log"`
	EmailFrom      string `env:"EMAIL_FROM"      validate:"required_if=EmailTransport smtp,required_if=EmailTransport resend"`
	EmailTo        string `env:"EMAIL_TO"        validate:"omitempty,email"`
	SMTPHost       string `env:"SMTP_HOST"       validate:"required_if=EmailTransport smtp"`
	SMTPPort       int    `env:"SMTP_PORT"       envDefault:"587" validate:"min=1,max=65535"`
	SMTPUsername   string `env:"SMTP_USERNAME"`
	SMTPPassword   string `env:"SMTP_PASSWORD"`
	ResendAPIKey   string `env:"RESEND_API_KEY"  validate:"required_if=EmailTransport resend"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" validate:"omitempty,url"`
	OpenAIModel   string `env:"OPENAI_MODEL"    envDefault:"gpt-4o-mini"`

	WeatherBaseURL   string  `env:"WEATHER_BASE_URL"  envDefault:"https://api.open-meteo.com" validate:"url"`
	WeatherCron      string  `env:"WEATHER_CRON"      envDefault:"*/30 * * * *"`
	WeatherLocation  string  `env:"WEATHER_LOCATION"`
	WeatherLatitude  float64 `env:"WEATHER_LATITUDE"  validate:"min=-90,max=90"`
	WeatherLongitude float64 `env:"WEATHER_LONGITUDE" validate:"min=-180,max=180"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid config: timezone %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Location is safe to call after Load; the zone was already validated.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WeatherPollEnabled reports whether a weather poll definition should be ensured at boot.
func (c *Config) WeatherPollEnabled() bool {
	return c.WeatherLocation != ""
}
