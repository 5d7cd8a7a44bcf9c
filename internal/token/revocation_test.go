package token

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*RedisRevocationRegistry, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	tokens, err := NewManager(testSigningKey)
	require.NoError(t, err)

	return NewRedisRevocationRegistry(client, tokens, DefaultTTL), mr
}

func TestRevoke(t *testing.T) {
	registry, _ := newTestRegistry(t)

	credential, err := registry.tokens.Encode(1, time.Hour)
	require.NoError(t, err)

	revoked, err := registry.IsRevoked(context.Background(), credential)
	require.NoError(t, err)
	assert.False(t, revoked, "fresh credential must not be revoked")

	newly, err := registry.Revoke(context.Background(), credential)
	require.NoError(t, err)
	assert.True(t, newly, "first revocation reports newly revoked")

	revoked, err = registry.IsRevoked(context.Background(), credential)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevokeIdempotent(t *testing.T) {
	registry, _ := newTestRegistry(t)

	credential, err := registry.tokens.Encode(1, time.Hour)
	require.NoError(t, err)

	newly, err := registry.Revoke(context.Background(), credential)
	require.NoError(t, err)
	assert.True(t, newly)

	newly, err = registry.Revoke(context.Background(), credential)
	require.NoError(t, err, "revoking twice is not an error")
	assert.False(t, newly, "second revocation reports already revoked")

	revoked, err := registry.IsRevoked(context.Background(), credential)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevocationEntryExpires(t *testing.T) {
	registry, mr := newTestRegistry(t)

	credential, err := registry.tokens.Encode(1, time.Minute)
	require.NoError(t, err)

	_, err = registry.Revoke(context.Background(), credential)
	require.NoError(t, err)

	ttl := mr.TTL(registry.key(credential))
	assert.Greater(t, ttl, time.Duration(0), "entry must carry a TTL")
	assert.LessOrEqual(t, ttl, time.Minute, "entry must not outlive the credential")

	// after the credential's own expiry the entry is gone
	mr.FastForward(2 * time.Minute)
	revoked, err := registry.IsRevoked(context.Background(), credential)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevokeUndecodableCredential(t *testing.T) {
	registry, mr := newTestRegistry(t)

	newly, err := registry.Revoke(context.Background(), "opaque-credential")
	require.NoError(t, err)
	assert.True(t, newly)

	ttl := mr.TTL(registry.key("opaque-credential"))
	assert.Equal(t, DefaultTTL, ttl, "undecodable credential falls back to the default TTL")
}

func TestRegistryUnavailable(t *testing.T) {
	registry, mr := newTestRegistry(t)
	mr.Close()

	_, err := registry.IsRevoked(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrRegistryUnavailable)

	_, err = registry.Revoke(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
}
