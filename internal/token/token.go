package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of a credential when the caller does not choose one.
const DefaultTTL = 24 * time.Hour

var (
	ErrMalformedCredential = errors.New("malformed credential")
	ErrExpiredCredential   = errors.New("expired credential")
)

// Claims is the decoded content of a credential: the subject plus the
// registered issuance and expiry timestamps.
type Claims struct {
	UserId int `json:"user_id"`
	jwt.RegisteredClaims
}

// Manager encodes and decodes signed credentials. It holds no mutable state
// and is safe for concurrent use.
type Manager struct {
	signingKey []byte
}

func NewManager(signingKey []byte) (*Manager, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("signing key cannot be empty")
	}

	return &Manager{signingKey: signingKey}, nil
}

// Encode issues a credential for userId expiring ttl from now. A credential is
// valid up to and not including its expiry instant.
func (m *Manager) Encode(userId int, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserId: userId,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
}

// Decode validates the signature and expiry and returns the claims. Expired
// credentials fail with ErrExpiredCredential, anything else structurally wrong
// with ErrMalformedCredential.
func (m *Manager) Decode(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredCredential, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformedCredential
	}

	if claims.UserId <= 0 {
		return nil, fmt.Errorf("%w: missing user id claim", ErrMalformedCredential)
	}

	return claims, nil
}

// Fingerprint returns a stable identifier for a credential, used as the
// revocation registry key so raw credentials are never stored.
func Fingerprint(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}
