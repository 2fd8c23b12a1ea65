// Package config loads the server configuration from config.yaml, a local
// .env file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MinJWTSecretLength matches the check in auth.NewTokenService.
const MinJWTSecretLength = 16

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type StorageConfig struct {
	LogoDir string `mapstructure:"logo_dir"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// StripeConfig selects the payment gateway. An empty SecretKey runs the
// board with the offline gateway.
type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	Currency  string `mapstructure:"currency"`
}

// PricingConfig holds fees in the currency's minor unit.
type PricingConfig struct {
	BaseFee      int64 `mapstructure:"base_fee"`
	HighlightFee int64 `mapstructure:"highlight_fee"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "data/jobboard.db")
	v.SetDefault("storage.logo_dir", "data/logos")
	v.SetDefault("auth.session_ttl", "24h")
	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("pricing.base_fee", 4900)
	v.SetDefault("pricing.highlight_fee", 900)
	v.SetDefault("log.level", "info")
}

// bindEnvVars keeps the short variable names used in deployment manifests.
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.path", "DB_PATH")
	v.BindEnv("storage.logo_dir", "LOGO_DIR")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.session_ttl", "SESSION_TTL")
	v.BindEnv("stripe.secret_key", "STRIPE_SECRET")
	v.BindEnv("stripe.currency", "STRIPE_CURRENCY")
	v.BindEnv("log.level", "LOG_LEVEL")
}

// Validate reports the first setting the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("config: database.path is required")
	}
	if c.Storage.LogoDir == "" {
		return errors.New("config: storage.logo_dir is required")
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("config: auth.jwt_secret (JWT_SECRET) must be at least %d characters", MinJWTSecretLength)
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("config: auth.session_ttl must be positive, got %s", c.Auth.SessionTTL)
	}
	if c.Pricing.BaseFee <= 0 || c.Pricing.HighlightFee < 0 {
		return fmt.Errorf("config: invalid pricing (base %d, highlight %d)", c.Pricing.BaseFee, c.Pricing.HighlightFee)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}
