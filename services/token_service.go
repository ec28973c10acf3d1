package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Frodemaneskold/greenup/models"
)

// ErrInvalidToken is returned when a token fails parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// TokenService issues and validates the shim's HS256 session tokens.
type TokenService struct {
	Secret []byte
	TTL    time.Duration
}

// Claims are the shim's token claims.
type Claims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// Issue creates a signed token for the account.
func (s *TokenService) Issue(account *models.Account) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: account.Username,
		Email:    account.Email,
		Scope:    "authentication",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its claims.
func (s *TokenService) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.Secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Scope != "authentication" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
