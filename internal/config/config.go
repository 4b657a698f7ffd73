package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/basel-ax/imagestudio/internal/domain"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Config holds all configuration for the application
type Config struct {
	AppEnv                 string
	LogLevel               string
	Locale                 string
	APIBaseURL             string
	APIUsername            string
	APIPassword            string
	HTTPTimeout            time.Duration
	TokenStore             string
	SessionName            string
	SessionRefreshSchedule string
	DefaultSteps           int
	DefaultGuidanceScale   float64
	DefaultStrength        float64
	StubAddr               string
	DB                     DBConfig
}

const (
	TokenStoreMemory   = "memory"
	TokenStorePostgres = "postgres"
)

func defaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("LOCALE", "en")
	v.SetDefault("API_BASE_URL", "http://localhost:8000")
	v.SetDefault("API_USERNAME", "")
	v.SetDefault("API_PASSWORD", "")
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 0)
	v.SetDefault("TOKEN_STORE", TokenStoreMemory)
	v.SetDefault("SESSION_NAME", "default")
	v.SetDefault("SESSION_REFRESH_SCHEDULE", "")
	v.SetDefault("DEFAULT_STEPS", domain.DefaultSteps)
	v.SetDefault("DEFAULT_GUIDANCE_SCALE", domain.DefaultGuidanceScale)
	v.SetDefault("DEFAULT_STRENGTH", domain.DefaultStrength)
	v.SetDefault("STUB_ADDR", ":8000")

	v.SetDefault("DB_HOST", "")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 300)
}

// Load loads the configuration from the environment, reading .env first when present
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	config := &Config{
		AppEnv:                 v.GetString("APP_ENV"),
		LogLevel:               strings.ToLower(v.GetString("LOG_LEVEL")),
		Locale:                 strings.ToLower(v.GetString("LOCALE")),
		APIBaseURL:             v.GetString("API_BASE_URL"),
		APIUsername:            v.GetString("API_USERNAME"),
		APIPassword:            v.GetString("API_PASSWORD"),
		HTTPTimeout:            time.Duration(v.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,
		TokenStore:             strings.ToLower(v.GetString("TOKEN_STORE")),
		SessionName:            v.GetString("SESSION_NAME"),
		SessionRefreshSchedule: strings.TrimSpace(v.GetString("SESSION_REFRESH_SCHEDULE")),
		DefaultSteps:           domain.ClampSteps(v.GetInt("DEFAULT_STEPS")),
		DefaultGuidanceScale:   domain.ClampGuidanceScale(v.GetFloat64("DEFAULT_GUIDANCE_SCALE")),
		DefaultStrength:        domain.ClampStrength(v.GetFloat64("DEFAULT_STRENGTH")),
		StubAddr:               v.GetString("STUB_ADDR"),
		DB: DBConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Database:        v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSL_MODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME")) * time.Second,
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must not be negative")
	}
	switch c.Locale {
	case "en", "zh":
	default:
		return fmt.Errorf("LOCALE must be en or zh, got %q", c.Locale)
	}

	switch c.TokenStore {
	case TokenStoreMemory:
	case TokenStorePostgres:
		if c.DB.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
		if c.DB.User == "" {
			return fmt.Errorf("DB_USER is required")
		}
		if c.DB.Database == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	default:
		return fmt.Errorf("TOKEN_STORE must be %s or %s, got %q", TokenStoreMemory, TokenStorePostgres, c.TokenStore)
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

// NewLogger constructs a zerolog.Logger; development gets a console writer and debug level.
func NewLogger(appEnv, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if appEnv == "development" {
		lvl = zerolog.DebugLevel
	}
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}

	logger := zerolog.New(os.Stderr).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger
}
