// Package auth implements the administrative owner gate. Registering
// apps and currencies is owner-only; everything else on the HTTP
// surface is public reads.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNotOwner     = errors.New("token does not carry the owner role")
)

const roleOwner = "owner"

// Claims are the JWT claims carried by admin tokens.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and verifies HS256 owner tokens.
type Service struct {
	secret []byte
}

// NewService creates an auth service with the given signing secret.
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// IssueOwnerToken mints a token carrying the owner role for subject.
func (s *Service) IssueOwnerToken(subject string, ttl time.Duration) (string, error) {
	claims := &Claims{
		Role: roleOwner,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyOwner parses tokenString (with or without a "Bearer " prefix)
// and requires the owner role.
func (s *Service) VerifyOwner(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != roleOwner {
		return nil, ErrNotOwner
	}
	return claims, nil
}
