package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyOwner(t *testing.T) {
	svc := NewService("test-secret")

	t.Run("valid owner token", func(t *testing.T) {
		token, err := svc.IssueOwnerToken("admin", time.Hour)
		require.NoError(t, err)

		claims, err := svc.VerifyOwner(token)
		require.NoError(t, err)
		assert.Equal(t, "admin", claims.Subject)
	})

	t.Run("bearer prefix is stripped", func(t *testing.T) {
		token, err := svc.IssueOwnerToken("admin", time.Hour)
		require.NoError(t, err)

		_, err = svc.VerifyOwner("Bearer " + token)
		assert.NoError(t, err)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token, err := svc.IssueOwnerToken("admin", -time.Minute)
		require.NoError(t, err)

		_, err = svc.VerifyOwner(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		other := NewService("other-secret")
		token, err := other.IssueOwnerToken("admin", time.Hour)
		require.NoError(t, err)

		_, err = svc.VerifyOwner(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("non-owner role rejected", func(t *testing.T) {
		claims := &Claims{
			Role: "viewer",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "someone",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = svc.VerifyOwner(token)
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := svc.VerifyOwner("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
