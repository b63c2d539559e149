package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService issues and validates access tokens and hashes passwords.
type AuthService struct {
	jwtSecret         []byte
	accessTokenExpiry time.Duration
}

type tokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

func NewAuthService(jwtSecret string, accessTokenExpiry time.Duration) *AuthService {
	return &AuthService{
		jwtSecret:         []byte(jwtSecret),
		accessTokenExpiry: accessTokenExpiry,
	}
}

// GenerateToken creates a signed HS256 access token carrying the user id.
func (s *AuthService) GenerateToken(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenExpiry)),
		},
		UserID: userID,
	})
	return token.SignedString(s.jwtSecret)
}

// ValidateToken parses a token and returns the embedded user id.
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// GenerateRefreshToken creates an opaque random token for session renewal.
func (s *AuthService) GenerateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashPassword hashes a plaintext password with bcrypt.
func (s *AuthService) HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
