package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the service configuration, loaded from ORGCORE_* environment
// variables. Empty PGDSN keeps everything on the in-memory stores, which is
// how the smoke tooling and tests run.
type Config struct {
	HTTPAddr     string        `env:"ORGCORE_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr     string        `env:"ORGCORE_GRPC_ADDR" envDefault:":9090"`
	PGDSN        string        `env:"ORGCORE_PG_DSN"`
	RedisAddr    string        `env:"ORGCORE_REDIS_ADDR"`
	AuthSecret   string        `env:"ORGCORE_AUTH_SECRET"`
	SessionTTL   time.Duration `env:"ORGCORE_SESSION_TTL" envDefault:"12h"`
	OTLPEndpoint string        `env:"ORGCORE_OTLP_ENDPOINT"`
	RateBurst    int           `env:"ORGCORE_RATE_BURST" envDefault:"50"`
	RatePerSec   int           `env:"ORGCORE_RATE_PER_SEC" envDefault:"25"`
	MaxBodyBytes int64         `env:"ORGCORE_MAX_BODY_BYTES" envDefault:"1048576"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
