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

// Config holds all the configuration variables for the marketplace-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	TradeDecisionQueue         string `mapstructure:"TRADE_DECISION_QUEUE"`
	LedgerAPIBaseURL           string `mapstructure:"LEDGER_API_BASE_URL"`
	LedgerAPIKey               string `mapstructure:"LEDGER_API_KEY"`
	AuthJWKSURL                string `mapstructure:"AUTH_JWKS_URL"`
	PlatformAccountID          string `mapstructure:"PLATFORM_ACCOUNT_ID"`
	TradeRequiredApprovals     int    `mapstructure:"TRADE_REQUIRED_APPROVALS"`
	PurchaseRateLimitPerMinute int    `mapstructure:"PURCHASE_RATE_LIMIT_PER_MINUTE"`
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
	viper.SetDefault("TRADE_DECISION_QUEUE", "marketplace_service.trade_decisions")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "wellswap:rate_limit")
	viper.SetDefault("TRADE_REQUIRED_APPROVALS", 2)
	viper.SetDefault("PURCHASE_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "MARKETPLACE_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("TRADE_DECISION_QUEUE")
	_ = viper.BindEnv("LEDGER_API_BASE_URL")
	_ = viper.BindEnv("LEDGER_API_KEY")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("PLATFORM_ACCOUNT_ID")
	_ = viper.BindEnv("TRADE_REQUIRED_APPROVALS")
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
		config.RedisRateLimitPrefix = "wellswap:rate_limit"
	}
	config.PlatformAccountID = strings.TrimSpace(config.PlatformAccountID)

	if config.TradeRequiredApprovals <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive trade approval threshold; using default\" threshold=%d", config.TradeRequiredApprovals)
		config.TradeRequiredApprovals = 2
	}
	if config.PurchaseRateLimitPerMinute < 0 {
		config.PurchaseRateLimitPerMinute = 0
	}

	return
}
