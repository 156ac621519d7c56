package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// RedisConfig configures the execution claim lock.
// Claims are disabled when REDIS_ADDR is unset.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	ClaimTTL time.Duration `env:"REDIS_CLAIM_TTL, default=10m"`
}

func NewRedisConfigFromEnv() (*RedisConfig, error) {
	var cfg RedisConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}
