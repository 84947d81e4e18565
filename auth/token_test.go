package auth

import (
	"testing"
	"time"

	"market-chat/domain"
	"market-chat/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGenerateThenValidate(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager("a-test-secret-long-enough")

	token, err := manager.GenerateToken("u1", "Alice", time.Minute)
	req.NoError(err)

	identity, err := manager.ValidateToken(token)
	req.NoError(err)
	req.Equal(Identity{UserID: domain.UserID("u1"), Name: "Alice"}, identity)
}

func TestValidateToken_Rejections(t *testing.T) {
	manager := NewTokenManager("a-test-secret-long-enough")
	other := NewTokenManager("another-secret")

	expired, err := manager.GenerateToken("u1", "Alice", -time.Minute)
	require.NoError(t, err)
	foreign, err := other.GenerateToken("u1", "Alice", time.Minute)
	require.NoError(t, err)
	noUser, err := manager.GenerateToken("", "Nobody", time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &CustomClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("a-test-secret-long-enough"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"Expired", expired},
		{"Signed with another secret", foreign},
		{"Missing user id", noUser},
		{"Wrong issuer", wrongIssuer},
		{"Garbage", "not-a-jwt"},
		{"Empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.ValidateToken(tt.token)
			require.ErrorIs(t, err, errors.ErrUnauthorized)
		})
	}
}

func TestBearerToken(t *testing.T) {
	req := require.New(t)
	req.Equal("abc", BearerToken("Bearer abc"))
	req.Equal("abc", BearerToken("bearer abc"))
	req.Empty(BearerToken("Basic abc"))
	req.Empty(BearerToken("Bearer "))
	req.Empty(BearerToken(""))
}
