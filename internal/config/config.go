package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig is the raw environment surface. The signing secret arrives
// base64 encoded and is decoded during validation.
type envConfig struct {
	ServerAddr     string        `env:"SERVER_ADDR" envDefault:":8080"`
	DatabaseDSN    string        `env:"DATABASE_DSN"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	SigningSecret  string        `env:"SIGNING_SECRET"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
}

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	RedisAddr      string
	SigningKey     []byte
	AllowedOrigins []string
	TokenTTL       time.Duration
}

// FromEnv reads GATHERLY_* environment variables and validates them.
func FromEnv() (*Config, error) {
	ec, err := env.ParseAsWithOptions[envConfig](env.Options{Prefix: "GATHERLY_"})
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return NewConfig(ec.ServerAddr, ec.DatabaseDSN, ec.RedisAddr, ec.SigningSecret, ec.AllowedOrigins, ec.TokenTTL)
}

func NewConfig(serverAddr, databaseDSN, redisAddr, base64Secret string, allowedOrigins []string, tokenTTL time.Duration) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if redisAddr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if tokenTTL <= 0 {
		return nil, fmt.Errorf("token TTL must be positive")
	}

	signingKey, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		RedisAddr:      redisAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		TokenTTL:       tokenTTL,
	}, nil
}
