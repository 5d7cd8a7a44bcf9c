package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(":8080", "host=localhost", "localhost:6379", testSecret,
		[]string{"http://localhost:3000"}, 24*time.Hour)
	require.NoError(t, err)

	expectedKey, err := base64.StdEncoding.DecodeString(testSecret)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "host=localhost", cfg.DatabaseDSN)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, expectedKey, cfg.SigningKey)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
}

func TestNewConfigValidation(t *testing.T) {
	tcases := []struct {
		name       string
		serverAddr string
		dsn        string
		redisAddr  string
		secret     string
		ttl        time.Duration
	}{
		{
			name:      "empty server address",
			dsn:       "host=localhost",
			redisAddr: "localhost:6379",
			secret:    testSecret,
			ttl:       time.Hour,
		},
		{
			name:       "empty database DSN",
			serverAddr: ":8080",
			redisAddr:  "localhost:6379",
			secret:     testSecret,
			ttl:        time.Hour,
		},
		{
			name:       "empty redis address",
			serverAddr: ":8080",
			dsn:        "host=localhost",
			secret:     testSecret,
			ttl:        time.Hour,
		},
		{
			name:       "empty signing secret",
			serverAddr: ":8080",
			dsn:        "host=localhost",
			redisAddr:  "localhost:6379",
			ttl:        time.Hour,
		},
		{
			name:       "invalid base64 secret",
			serverAddr: ":8080",
			dsn:        "host=localhost",
			redisAddr:  "localhost:6379",
			secret:     "not base64!!!",
			ttl:        time.Hour,
		},
		{
			name:       "non-positive token TTL",
			serverAddr: ":8080",
			dsn:        "host=localhost",
			redisAddr:  "localhost:6379",
			secret:     testSecret,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.serverAddr, tc.dsn, tc.redisAddr, tc.secret, nil, tc.ttl)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("GATHERLY_DATABASE_DSN", "host=localhost")
	t.Setenv("GATHERLY_SIGNING_SECRET", testSecret)
	t.Setenv("GATHERLY_ALLOWED_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("GATHERLY_TOKEN_TTL", "1h")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr, "expected default server address")
	assert.Equal(t, "localhost:6379", cfg.RedisAddr, "expected default redis address")
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
}
