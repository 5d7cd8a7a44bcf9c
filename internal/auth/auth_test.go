package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/gatherly/internal/database"
	"github.com/gatherly/gatherly/internal/testutil"
	"github.com/gatherly/gatherly/internal/token"
)

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) Revoke(ctx context.Context, credential string) (bool, error) {
	args := m.Called(ctx, credential)
	return args.Bool(0), args.Error(1)
}

func (m *mockRegistry) IsRevoked(ctx context.Context, credential string) (bool, error) {
	args := m.Called(ctx, credential)
	return args.Bool(0), args.Error(1)
}

func newTestAuthenticator(t *testing.T, registry *mockRegistry, db *database.MockRepository) (*Authenticator, *token.Manager) {
	t.Helper()

	tokens, err := token.NewManager([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	return NewAuthenticator(testutil.TestLogger(t), tokens, registry, db), tokens
}

func TestAuthenticate(t *testing.T) {
	expectedUser := database.User{
		Id:           7,
		EmailAddress: "user@example.com",
	}

	registry := &mockRegistry{}
	defer registry.AssertExpectations(t)
	db := &database.MockRepository{}
	defer db.AssertExpectations(t)

	a, tokens := newTestAuthenticator(t, registry, db)

	credential, err := tokens.Encode(expectedUser.Id, time.Minute)
	require.NoError(t, err)

	registry.On("IsRevoked", mock.Anything, credential).Return(false, nil).Once()
	db.On("GetAccountById", expectedUser.Id).Return(expectedUser, nil).Once()

	user, err := a.Authenticate(context.Background(), credential)
	assert.NoError(t, err)
	assert.Equal(t, expectedUser, user)
}

func TestAuthenticateFailures(t *testing.T) {
	tcases := []struct {
		name  string
		setup func(t *testing.T, tokens *token.Manager, registry *mockRegistry, db *database.MockRepository) string
	}{
		{
			name: "missing credential",
			setup: func(t *testing.T, tokens *token.Manager, registry *mockRegistry, db *database.MockRepository) string {
				return ""
			},
		},
		{
			name: "revoked credential",
			setup: func(t *testing.T, tokens *token.Manager, registry *mockRegistry, db *database.MockRepository) string {
				credential, err := tokens.Encode(7, time.Minute)
				require.NoError(t, err)
				registry.On("IsRevoked", mock.Anything, credential).Return(true, nil).Once()
				return credential
			},
		},
		{
			name: "registry unavailable fails closed",
			setup: func(t *testing.T, tokens *token.Manager, registry *mockRegistry, db *database.MockRepository) string {
				credential, err := tokens.Encode(7, time.Minute)
				require.NoError(t, err)
				registry.On("IsRevoked", mock.Anything, credential).
					Return(false, token.ErrRegistryUnavailable).Once()
				return credential
			},
		},
		{
			name: "malformed credential",
			setup: func(t *testing.T, tokens *token.Manager, registry *mockRegistry, db *database.MockRepository) string {
				registry.On("IsRevoked", mock.Anything, "garbage").Return(false, nil).Once()
				return "garbage"
			},
		},
		{
			name: "expired credential",
			setup: func(t *testing.T, tokens *token.Manager, registry *mockRegistry, db *database.MockRepository) string {
				credential, err := tokens.Encode(7, -time.Minute)
				require.NoError(t, err)
				registry.On("IsRevoked", mock.Anything, credential).Return(false, nil).Once()
				return credential
			},
		},
		{
			name: "unknown subject",
			setup: func(t *testing.T, tokens *token.Manager, registry *mockRegistry, db *database.MockRepository) string {
				credential, err := tokens.Encode(7, time.Minute)
				require.NoError(t, err)
				registry.On("IsRevoked", mock.Anything, credential).Return(false, nil).Once()
				db.On("GetAccountById", 7).Return(database.User{}, sql.ErrNoRows).Once()
				return credential
			},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			registry := &mockRegistry{}
			defer registry.AssertExpectations(t)
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)

			a, tokens := newTestAuthenticator(t, registry, db)
			credential := tc.setup(t, tokens, registry, db)

			_, err := a.Authenticate(context.Background(), credential)
			assert.ErrorIs(t, err, ErrUnauthorized, "every authentication failure maps to ErrUnauthorized")
		})
	}
}

func TestAuthenticateDirectoryError(t *testing.T) {
	registry := &mockRegistry{}
	defer registry.AssertExpectations(t)
	db := &database.MockRepository{}
	defer db.AssertExpectations(t)

	a, tokens := newTestAuthenticator(t, registry, db)

	credential, err := tokens.Encode(7, time.Minute)
	require.NoError(t, err)

	registry.On("IsRevoked", mock.Anything, credential).Return(false, nil).Once()
	db.On("GetAccountById", 7).Return(database.User{}, errors.New("db down")).Once()

	_, err = a.Authenticate(context.Background(), credential)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized, "infrastructure errors are not authentication verdicts")
}

func TestCanAccessChat(t *testing.T) {
	tcases := []struct {
		name        string
		member      bool
		participant bool
		expected    bool
	}{
		{
			name:        "member and attending",
			member:      true,
			participant: true,
			expected:    true,
		},
		{
			name:        "member but not attending",
			member:      true,
			participant: false,
			expected:    false,
		},
		{
			name:        "not a member",
			member:      false,
			participant: true,
			expected:    false,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)

			db.On("IsGroupMember", 1, 2).Return(tc.member, nil).Once()
			if tc.member {
				db.On("IsEventParticipant", 1, 3, database.StatusAttending).
					Return(tc.participant, nil).Once()
			}

			o := NewOracle(db)
			ok, err := o.CanAccessChat(1, 2, 3)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, ok)
		})
	}
}

func TestCanAccessPosts(t *testing.T) {
	db := &database.MockRepository{}
	defer db.AssertExpectations(t)

	db.On("IsGroupMember", 1, 2).Return(true, nil).Once()

	o := NewOracle(db)
	ok, err := o.CanAccessPosts(1, 2)
	assert.NoError(t, err)
	assert.True(t, ok, "posting requires membership only")
}
