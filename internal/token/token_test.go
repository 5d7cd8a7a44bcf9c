package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func TestNewManager(t *testing.T) {
	t.Run("fails with empty key", func(t *testing.T) {
		m, err := NewManager(nil)
		assert.Error(t, err, "expected error for empty signing key")
		assert.Nil(t, m)
	})

	t.Run("succeeds with key", func(t *testing.T) {
		m, err := NewManager(testSigningKey)
		assert.NoError(t, err)
		assert.NotNil(t, m)
	})
}

func TestEncodeDecode(t *testing.T) {
	m, err := NewManager(testSigningKey)
	require.NoError(t, err)

	credential, err := m.Encode(42, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, credential)

	claims, err := m.Decode(credential)
	require.NoError(t, err)
	assert.Equal(t, 42, claims.UserId, "expected subject to round-trip")
	assert.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestDecodeExpired(t *testing.T) {
	m, err := NewManager(testSigningKey)
	require.NoError(t, err)

	credential, err := m.Encode(42, -time.Minute)
	require.NoError(t, err)

	_, err = m.Decode(credential)
	assert.ErrorIs(t, err, ErrExpiredCredential)
}

func TestDecodeMalformed(t *testing.T) {
	m, err := NewManager(testSigningKey)
	require.NoError(t, err)

	tcases := []struct {
		name       string
		credential string
	}{
		{
			name:       "garbage credential",
			credential: "not-a-credential",
		},
		{
			name:       "empty credential",
			credential: "",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Decode(tc.credential)
			assert.ErrorIs(t, err, ErrMalformedCredential)
		})
	}
}

func TestDecodeWrongKey(t *testing.T) {
	m1, err := NewManager(testSigningKey)
	require.NoError(t, err)
	m2, err := NewManager([]byte("another-signing-key-of-some-size"))
	require.NoError(t, err)

	credential, err := m1.Encode(42, time.Minute)
	require.NoError(t, err)

	_, err = m2.Decode(credential)
	assert.ErrorIs(t, err, ErrMalformedCredential, "credential signed with a different key must not decode")
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("abc"), Fingerprint("abc"), "expected fingerprint to be stable")
	assert.NotEqual(t, Fingerprint("abc"), Fingerprint("abd"), "expected distinct credentials to fingerprint differently")
	assert.Len(t, Fingerprint("abc"), 64)
}
