/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payment-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                   string  `mapstructure:"SERVER_PORT"`
	DatabaseURL                  string  `mapstructure:"DATABASE_URL"`
	RedisURL                     string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                  string  `mapstructure:"RABBITMQ_URL"`
	PaymentEventExchange         string  `mapstructure:"PAYMENT_EVENT_EXCHANGE"`
	JWTSecret                    string  `mapstructure:"JWT_SECRET"`
	WebhookSecret                string  `mapstructure:"WEBHOOK_SECRET"`
	ProxyAPIBaseURL              string  `mapstructure:"PROXY_API_BASE_URL"`
	ProxyAPIKey                  string  `mapstructure:"PROXY_API_KEY"`
	ProxyAPISecret               string  `mapstructure:"PROXY_API_SECRET"`
	PaymentPointBaseURL          string  `mapstructure:"PAYMENTPOINT_BASE_URL"`
	PaymentPointAPIKey           string  `mapstructure:"PAYMENTPOINT_API_KEY"`
	PaymentPointAPISecret        string  `mapstructure:"PAYMENTPOINT_API_SECRET"`
	PaymentPointBusinessID       string  `mapstructure:"PAYMENTPOINT_BUSINESS_ID"`
	ExchangeRateURL              string  `mapstructure:"EXCHANGE_RATE_URL"`
	ExchangeRateFallback         float64 `mapstructure:"EXCHANGE_RATE_FALLBACK"`
	ExchangeRateTTLMinutes       int     `mapstructure:"EXCHANGE_RATE_TTL_MINUTES"`
	PriceToleranceMinNGN         int64   `mapstructure:"PRICE_TOLERANCE_MIN_NGN"`
	DepositRateLimitPerMinute    int     `mapstructure:"DEPOSIT_RATE_LIMIT_PER_MINUTE"`
	PurchaseRateLimitPerMinute   int     `mapstructure:"PURCHASE_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PAYMENT_EVENT_EXCHANGE", "payment_events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "proxynest:rate_limit")
	viper.SetDefault("EXCHANGE_RATE_URL", "https://open.er-api.com/v6")
	viper.SetDefault("EXCHANGE_RATE_FALLBACK", 1500.0)
	viper.SetDefault("EXCHANGE_RATE_TTL_MINUTES", 60)
	viper.SetDefault("PRICE_TOLERANCE_MIN_NGN", 100)
	viper.SetDefault("DEPOSIT_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("PURCHASE_RATE_LIMIT_PER_MINUTE", 20)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYMENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYMENT_EVENT_EXCHANGE")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("WEBHOOK_SECRET", "WEBHOOK_SECRET", "PAYMENTPOINT_WEBHOOK_SECRET")
	_ = viper.BindEnv("PROXY_API_BASE_URL")
	_ = viper.BindEnv("PROXY_API_KEY")
	_ = viper.BindEnv("PROXY_API_SECRET")
	_ = viper.BindEnv("PAYMENTPOINT_BASE_URL")
	_ = viper.BindEnv("PAYMENTPOINT_API_KEY")
	_ = viper.BindEnv("PAYMENTPOINT_API_SECRET")
	_ = viper.BindEnv("PAYMENTPOINT_BUSINESS_ID")
	_ = viper.BindEnv("EXCHANGE_RATE_URL")
	_ = viper.BindEnv("EXCHANGE_RATE_FALLBACK")
	_ = viper.BindEnv("EXCHANGE_RATE_TTL_MINUTES")
	_ = viper.BindEnv("PRICE_TOLERANCE_MIN_NGN")
	_ = viper.BindEnv("DEPOSIT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("PURCHASE_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "proxynest:rate_limit"
	}
	config.WebhookSecret = strings.TrimSpace(config.WebhookSecret)

	if config.ExchangeRateFallback <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive exchange rate fallback; using 1500\" value=%f", config.ExchangeRateFallback)
		config.ExchangeRateFallback = 1500
	}
	if config.ExchangeRateTTLMinutes <= 0 {
		config.ExchangeRateTTLMinutes = 60
	}
	if config.PriceToleranceMinNGN < 0 {
		log.Printf("level=warn component=config msg=\"negative price tolerance configured; coercing to zero\" value=%d", config.PriceToleranceMinNGN)
		config.PriceToleranceMinNGN = 0
	}

	return
}
