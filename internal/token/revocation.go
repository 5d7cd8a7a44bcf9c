package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRegistryUnavailable wraps transport failures talking to the registry.
// Callers treat it as fail-closed: a credential that cannot be checked does
// not authenticate.
var ErrRegistryUnavailable = errors.New("revocation registry unavailable")

const revokedKeyPrefix = "revoked:"

// RevocationRegistry records credentials invalidated before their natural
// expiry. Entries are garbage-collected once the credential itself would have
// expired anyway.
type RevocationRegistry interface {
	// Revoke marks a credential as revoked. It reports true if the credential
	// was newly revoked and false if it already was; a duplicate call is never
	// an error.
	Revoke(ctx context.Context, credential string) (bool, error)
	IsRevoked(ctx context.Context, credential string) (bool, error)
}

// RedisRevocationRegistry is a Redis-backed RevocationRegistry shared by every
// service instance. Keys carry a TTL matching the credential's remaining
// lifetime, so the registry cleans itself up.
type RedisRevocationRegistry struct {
	redis      redis.UniversalClient
	tokens     *Manager
	defaultTTL time.Duration
}

func NewRedisRevocationRegistry(client redis.UniversalClient, tokens *Manager, defaultTTL time.Duration) *RedisRevocationRegistry {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	return &RedisRevocationRegistry{
		redis:      client,
		tokens:     tokens,
		defaultTTL: defaultTTL,
	}
}

func (r *RedisRevocationRegistry) key(credential string) string {
	return revokedKeyPrefix + Fingerprint(credential)
}

// entryTTL keeps the revocation entry alive no longer than the credential
// itself. Undecodable credentials fall back to the default credential TTL.
func (r *RedisRevocationRegistry) entryTTL(credential string) time.Duration {
	claims, err := r.tokens.Decode(credential)
	if err != nil {
		return r.defaultTTL
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return time.Second
	}

	return ttl
}

func (r *RedisRevocationRegistry) Revoke(ctx context.Context, credential string) (bool, error) {
	newlyRevoked, err := r.redis.SetNX(ctx, r.key(credential), 1, r.entryTTL(credential)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	return newlyRevoked, nil
}

func (r *RedisRevocationRegistry) IsRevoked(ctx context.Context, credential string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.key(credential)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	return n > 0, nil
}
