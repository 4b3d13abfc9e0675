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

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`

	// Late-fine policy: a fixed fine attaches to collections made after the
	// cutoff day of the month. Both knobs are configurable because the
	// business has changed the cutoff before.
	LateFineAmount    float64 `mapstructure:"LATE_FINE_AMOUNT"`
	LateFineCutoffDay int     `mapstructure:"LATE_FINE_CUTOFF_DAY"`

	// Server-side default for the create-cycle sweep of unassigned paid
	// payments; a request-level flag always wins over this.
	SweepUnassignedOnCreate bool `mapstructure:"SWEEP_UNASSIGNED_ON_CREATE"`

	PaymentRateLimitPerMinute      int `mapstructure:"PAYMENT_RATE_LIMIT_PER_MINUTE"`
	DistributionRateLimitPerMinute int `mapstructure:"DISTRIBUTION_RATE_LIMIT_PER_MINUTE"`

	ReconcilerCronSpec string `mapstructure:"RECONCILER_CRON_SPEC"`
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
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "poolvest:rate_limit")
	viper.SetDefault("LATE_FINE_AMOUNT", 10.0)
	viper.SetDefault("LATE_FINE_CUTOFF_DAY", 12)
	viper.SetDefault("SWEEP_UNASSIGNED_ON_CREATE", false)
	viper.SetDefault("PAYMENT_RATE_LIMIT_PER_MINUTE", 0)
	viper.SetDefault("DISTRIBUTION_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("RECONCILER_CRON_SPEC", "*/10 * * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "LEDGER_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("LATE_FINE_AMOUNT")
	_ = viper.BindEnv("LATE_FINE_CUTOFF_DAY")
	_ = viper.BindEnv("SWEEP_UNASSIGNED_ON_CREATE")
	_ = viper.BindEnv("PAYMENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("DISTRIBUTION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RECONCILER_CRON_SPEC")

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
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("LEDGER_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "poolvest:rate_limit"
	}

	if config.LateFineAmount < 0 {
		log.Printf("level=warn component=config msg=\"negative late fine configured; coercing to zero\" fine=%f", config.LateFineAmount)
		config.LateFineAmount = 0
	}
	// Clamp the cutoff to days every month has, so the policy never silently
	// stops firing in February.
	if config.LateFineCutoffDay < 1 {
		log.Printf("level=warn component=config msg=\"late fine cutoff day too low; clamping\" cutoff=%d", config.LateFineCutoffDay)
		config.LateFineCutoffDay = 1
	}
	if config.LateFineCutoffDay > 28 {
		log.Printf("level=warn component=config msg=\"late fine cutoff day too high; clamping\" cutoff=%d", config.LateFineCutoffDay)
		config.LateFineCutoffDay = 28
	}

	if config.PaymentRateLimitPerMinute < 0 {
		config.PaymentRateLimitPerMinute = 0
	}
	if config.DistributionRateLimitPerMinute < 0 {
		config.DistributionRateLimitPerMinute = 0
	}

	if strings.TrimSpace(config.ReconcilerCronSpec) == "" {
		config.ReconcilerCronSpec = "*/10 * * * *"
	}

	return
}
