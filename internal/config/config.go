package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	Environment   string
	LogLevel      string
	PublicBaseURL string // where the shopper's browser reaches this service; used for the payment success_url
	Backend       BackendConfig
	Redis         RedisConfig
	MySQL         MySQLConfig
	RabbitMQ      RabbitMQConfig
	Retry         RetryConfig
	// PaymentRedirectDelay is how long the success page waits before sending the shopper to /orders
	PaymentRedirectDelay time.Duration
}

// BackendConfig points at the storefront REST backend
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MySQLConfig is optional; an empty Host disables the payment journal
type MySQLConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// RabbitMQConfig is optional; an empty URL disables event publishing
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	viper.SetDefault("BACKEND_BASE_URL", "http://localhost:9005/api")
	viper.SetDefault("BACKEND_TIMEOUT", "30s")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("MYSQL_PORT", "3306")
	viper.SetDefault("RABBITMQ_EXCHANGE", "storefront.exchange")
	viper.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	viper.SetDefault("RETRY_BASE_DELAY", "1s")
	viper.SetDefault("PAYMENT_REDIRECT_DELAY", "5s")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// .env is optional
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port:          getEnvOrViper("PORT", "8080"),
		Environment:   getEnvOrViper("ENVIRONMENT", "development"),
		LogLevel:      getEnvOrViper("LOG_LEVEL", "info"),
		PublicBaseURL: strings.TrimSuffix(strings.TrimSpace(getEnvOrViper("PUBLIC_BASE_URL", "")), "/"),
		Backend: BackendConfig{
			BaseURL: strings.TrimSuffix(strings.TrimSpace(getEnvOrViper("BACKEND_BASE_URL", "")), "/"),
			Timeout: viper.GetDuration("BACKEND_TIMEOUT"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrViper("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrViper("REDIS_PASSWORD", ""),
			DB:       viper.GetInt("REDIS_DB"),
		},
		MySQL: MySQLConfig{
			Host:     strings.TrimSpace(getEnvOrViper("MYSQL_HOST", "")),
			Port:     getEnvOrViper("MYSQL_PORT", "3306"),
			User:     getEnvOrViper("MYSQL_USER", ""),
			Password: getEnvOrViper("MYSQL_PASSWORD", ""),
			Database: getEnvOrViper("MYSQL_DATABASE", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      strings.TrimSpace(getEnvOrViper("RABBITMQ_URL", "")),
			Exchange: getEnvOrViper("RABBITMQ_EXCHANGE", "storefront.exchange"),
		},
		Retry: RetryConfig{
			MaxAttempts: viper.GetInt("RETRY_MAX_ATTEMPTS"),
			BaseDelay:   viper.GetDuration("RETRY_BASE_DELAY"),
		},
		PaymentRedirectDelay: viper.GetDuration("PAYMENT_REDIRECT_DELAY"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the service cannot start without.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("BACKEND_BASE_URL is invalid: %w", err)
	}
	if c.PublicBaseURL == "" {
		return fmt.Errorf("PUBLIC_BASE_URL is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}
