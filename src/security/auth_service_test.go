package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(testSecret, time.Hour)

	token, err := svc.GenerateToken("u1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewAuthService(testSecret, time.Hour)
	verifier := NewAuthService("another-secret-another-secret!!!", time.Hour)

	token, err := issuer.GenerateToken("u1")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenExpired(t *testing.T) {
	svc := NewAuthService(testSecret, -time.Minute)

	token, err := svc.GenerateToken("u1")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenGarbage(t *testing.T) {
	svc := NewAuthService(testSecret, time.Hour)
	_, err := svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateRefreshTokenUnique(t *testing.T) {
	svc := NewAuthService(testSecret, time.Hour)

	a, err := svc.GenerateRefreshToken()
	require.NoError(t, err)
	b, err := svc.GenerateRefreshToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestHashPassword(t *testing.T) {
	svc := NewAuthService(testSecret, time.Hour)

	hashed, err := svc.HashPassword("secret123")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hashed), []byte("secret123")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hashed), []byte("wrong")))
}
