package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbin-scan/pkg/apierror"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("any-secret"))
	require.NoError(t, err)
	return raw
}

func TestInspect(t *testing.T) {
	t.Run("reads exp and sub without verifying", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		claims, err := Inspect(signedToken(t, exp))

		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
		assert.True(t, claims.ExpiresAt.Equal(exp))
		assert.False(t, claims.Expired(time.Now()))
	})

	t.Run("expired credential", func(t *testing.T) {
		claims, err := Inspect(signedToken(t, time.Now().Add(-time.Minute)))

		require.NoError(t, err)
		assert.True(t, claims.Expired(time.Now()))
	})

	t.Run("rejects non three-segment input", func(t *testing.T) {
		_, err := Inspect("not-a-token")
		assert.Equal(t, apierror.KindAuthExpired, apierror.KindOf(err))
	})

	t.Run("rejects garbage segments", func(t *testing.T) {
		_, err := Inspect("a.b.c")
		assert.Equal(t, apierror.KindAuthExpired, apierror.KindOf(err))
	})

	t.Run("rejects token without exp", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u"}).SignedString([]byte("s"))
		require.NoError(t, err)

		_, err = Inspect(raw)
		assert.Equal(t, apierror.KindAuthExpired, apierror.KindOf(err))
	})
}
