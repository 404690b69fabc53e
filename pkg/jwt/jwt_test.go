package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-access-secret-key-for-testing-purposes"

func TestGenerateAccessToken(t *testing.T) {
	service := NewService(testSecret)
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, "0771234567", []string{"passenger"}, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "0771234567", claims.Phone)
	assert.Equal(t, []string{"passenger"}, claims.Roles)
	assert.Equal(t, AccessToken, claims.TokenType)
}

func TestValidateAccessToken_Errors(t *testing.T) {
	service := NewService(testSecret)
	userID := uuid.New()

	t.Run("Expired", func(t *testing.T) {
		token, err := service.GenerateAccessToken(userID, "", nil, -time.Minute)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		require.Error(t, err)
		assert.True(t, IsExpired(err))
	})

	t.Run("Wrong secret", func(t *testing.T) {
		token, err := NewService("another-secret").GenerateAccessToken(userID, "", nil, time.Hour)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
		assert.False(t, IsExpired(err))
	})

	t.Run("Refresh token rejected", func(t *testing.T) {
		claims := Claims{
			UserID:    userID,
			TokenType: TokenType("refresh"),
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrWrongTokenType)
	})

	t.Run("Unexpected signing method", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{TokenType: AccessToken}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := service.ValidateAccessToken("not.a.token")
		assert.Error(t, err)
	})
}
