package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chessclub-academy/service-pricing/pkg/config"
)

// PricingConfig holds pricing-specific configuration.
type PricingConfig struct {
	Currency               string
	CodeGenerationAttempts int
	IdempotencyTTL         time.Duration
}

// ServiceConfig holds all configuration for the pricing service.
type ServiceConfig struct {
	Port          string
	AppEnv        string
	DBConfig      config.DatabaseConfig
	JWTConfig     config.JWTConfig
	KafkaConfig   config.KafkaConfig
	RedisConfig   config.RedisConfig
	PricingConfig PricingConfig
}

// Load reads configuration from environment variables and returns a ServiceConfig.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("pricing")
	if err != nil {
		return nil, err
	}

	return &ServiceConfig{
		Port:          config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:        config.GetAppEnv(v),
		DBConfig:      config.LoadDatabaseConfig(v, "DB_NAME"),
		JWTConfig:     config.LoadJWTConfig(v),
		KafkaConfig:   config.LoadKafkaConfig(v),
		RedisConfig:   config.LoadRedisConfig(v),
		PricingConfig: loadPricingConfig(v),
	}, nil
}

// loadPricingConfig extracts pricing configuration from Viper.
func loadPricingConfig(v *viper.Viper) PricingConfig {
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("CODE_GENERATION_ATTEMPTS", 10)
	v.SetDefault("IDEMPOTENCY_TTL", "24h")

	attempts := v.GetInt("CODE_GENERATION_ATTEMPTS")
	if attempts <= 0 {
		attempts = 10
	}
	ttl := v.GetDuration("IDEMPOTENCY_TTL")
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return PricingConfig{
		Currency:               strings.ToUpper(strings.TrimSpace(v.GetString("CURRENCY"))),
		CodeGenerationAttempts: attempts,
		IdempotencyTTL:         ttl,
	}
}
