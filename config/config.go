package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

/* Config é um pacote auxiliar. All values come from environment variables
 * or an optional .env file.
 */

type Config struct {
	Port          string `mapstructure:"PORT"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// CatalogFile optionally extends the built-in event catalog
	CatalogFile string `mapstructure:"CATALOG_FILE"`

	DispatchTimeoutSeconds int     `mapstructure:"DISPATCH_TIMEOUT_SECONDS"`
	MaxAttempts            int     `mapstructure:"MAX_ATTEMPTS"`
	BackoffBaseSeconds     int     `mapstructure:"BACKOFF_BASE_SECONDS"`
	BackoffMaxSeconds      int     `mapstructure:"BACKOFF_MAX_SECONDS"`
	BackoffJitter          float64 `mapstructure:"BACKOFF_JITTER"`
	RetryPollSeconds       int     `mapstructure:"RETRY_POLL_SECONDS"`
	ClaimTTLSeconds        int     `mapstructure:"CLAIM_TTL_SECONDS"`
	Workers                int     `mapstructure:"WORKERS"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("DISPATCH_TIMEOUT_SECONDS", 30)
	viper.SetDefault("MAX_ATTEMPTS", 5)
	viper.SetDefault("BACKOFF_BASE_SECONDS", 30)
	viper.SetDefault("BACKOFF_MAX_SECONDS", 3600)
	viper.SetDefault("BACKOFF_JITTER", 0.2)
	viper.SetDefault("RETRY_POLL_SECONDS", 10)
	viper.SetDefault("CLAIM_TTL_SECONDS", 120)
	viper.SetDefault("WORKERS", 4)

	if err := viper.ReadInConfig(); err != nil {
		// the .env file is optional; environment variables suffice
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}

// DispatchTimeout returns the per-attempt HTTP timeout
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutSeconds) * time.Second
}

// BackoffBase returns the initial retry delay
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// BackoffMax returns the retry delay ceiling
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxSeconds) * time.Second
}

// RetryPollInterval returns the due-retry scan interval
func (c *Config) RetryPollInterval() time.Duration {
	return time.Duration(c.RetryPollSeconds) * time.Second
}

// ClaimTTL returns how long a dispatch claim may sit untouched before
// the scheduler reclaims it from a dead worker
func (c *Config) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLSeconds) * time.Second
}
