package upload

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-site/internal/apperr"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, secret string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		Email: "maria@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "guest-1",
		},
	}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	tok, err := IssueToken(secret, claims)
	require.NoError(t, err)
	return tok
}

func TestJWTAuthenticator(t *testing.T) {
	auth := NewJWTAuthenticator(testSecret)
	ctx := context.Background()

	ident, err := auth.Authenticate(ctx, signToken(t, testSecret, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "guest-1", ident.Subject)
	assert.Equal(t, "maria@example.com", ident.Email)

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"missing", "", MsgMissingAuth},
		{"garbage", "not-a-jwt", MsgInvalidToken},
		{"expired", signToken(t, testSecret, time.Now().Add(-time.Minute)), MsgInvalidToken},
		{"no expiry", signToken(t, testSecret, time.Time{}), MsgInvalidToken},
		{"wrong secret", signToken(t, "another-secret", time.Now().Add(time.Hour)), MsgInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Authenticate(ctx, tt.token)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindAuth))
			assert.Equal(t, tt.want, apperr.PublicMessage(err, ""))
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer   abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}
