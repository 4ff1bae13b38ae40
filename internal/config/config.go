// Package config loads marketplace configuration from environment variables
// (or an optional .env-style file) via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application. The values are read by
// viper from environment variables, with defaults for every optional knob.
type Config struct {
	Port string `mapstructure:"PORT"`

	// Persistence. An empty DatabaseURL falls back to the in-memory store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	// Auth.
	JWTSecret string        `mapstructure:"JWT_SECRET"`
	TokenTTL  time.Duration `mapstructure:"TOKEN_TTL"`

	// Contract event relay.
	RPCURL          string        `mapstructure:"RPC_URL"`
	ContractAddress string        `mapstructure:"CONTRACT_ADDRESS"`
	PollInterval    time.Duration `mapstructure:"POLL_INTERVAL"`
	PollBackoff     time.Duration `mapstructure:"POLL_BACKOFF"`
	LookbackBlocks  uint64        `mapstructure:"LOOKBACK_BLOCKS"`
	DedupeCacheSize int           `mapstructure:"DEDUPE_CACHE_SIZE"`

	// Optional broker republishing of relayed events.
	RabbitMQURL     string `mapstructure:"RABBITMQ_URL"`
	EventExchange   string `mapstructure:"EVENT_EXCHANGE"`
	EventRoutingKey string `mapstructure:"EVENT_ROUTING_KEY"`
}

// Load reads configuration from the environment and an optional config file
// in the given path.
func Load(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_TTL", 24*time.Hour)
	v.SetDefault("RPC_URL", "")
	v.SetDefault("CONTRACT_ADDRESS", "")
	v.SetDefault("POLL_INTERVAL", 3*time.Second)
	v.SetDefault("POLL_BACKOFF", 2*time.Second)
	v.SetDefault("LOOKBACK_BLOCKS", uint64(2))
	v.SetDefault("DEDUPE_CACHE_SIZE", 1000)
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("EVENT_EXCHANGE", "marketplace.events")
	v.SetDefault("EVENT_ROUTING_KEY", "product.updated")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the values the server cannot run without. The relay knobs
// are deliberately not validated here: a missing RPC endpoint downgrades the
// listener to a no-op instead of failing startup.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}
