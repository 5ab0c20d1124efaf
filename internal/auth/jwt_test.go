package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermowatch/internal/model"
)

const secret = "test-secret"

func sign(t *testing.T, key string, method jwt.SigningMethod, c Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, c).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func claims(sub, role string, exp time.Time) Claims {
	return Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func TestAuthorize(t *testing.T) {
	a := NewJWTAuthorizer(secret, []string{"authenticated", " admin "})
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	actor, err := a.Authorize(ctx, sign(t, secret, jwt.SigningMethodHS256, claims("user-1", "authenticated", future)))
	require.NoError(t, err)
	assert.Equal(t, model.Actor{ID: "user-1", CanMutateThresholds: true}, actor)

	actor, err = a.Authorize(ctx, sign(t, secret, jwt.SigningMethodHS256, claims("user-2", "admin", future)))
	require.NoError(t, err)
	assert.True(t, actor.CanMutateThresholds)

	actor, err = a.Authorize(ctx, sign(t, secret, jwt.SigningMethodHS256, claims("anon", "anon", future)))
	require.NoError(t, err)
	assert.False(t, actor.CanMutateThresholds)
}

func TestAuthorizeRejects(t *testing.T) {
	a := NewJWTAuthorizer(secret, []string{"authenticated"})
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	tokens := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"wrong secret": sign(t, "other", jwt.SigningMethodHS256, claims("u", "authenticated", future)),
		"expired":      sign(t, secret, jwt.SigningMethodHS256, claims("u", "authenticated", time.Now().Add(-time.Minute))),
		"wrong alg":    sign(t, secret, jwt.SigningMethodHS512, claims("u", "authenticated", future)),
		"no expiry":    sign(t, secret, jwt.SigningMethodHS256, Claims{Role: "authenticated", RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}),
	}
	for name, token := range tokens {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authorize(ctx, token)
			assert.ErrorIs(t, err, model.ErrUnauthorized)
		})
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/thresholds", nil)
	assert.Equal(t, "", BearerToken(r))

	r.Header.Set("Authorization", "Bearer abc.def")
	assert.Equal(t, "abc.def", BearerToken(r))

	r.Header.Set("Authorization", "bearer xyz")
	assert.Equal(t, "xyz", BearerToken(r))

	r.Header.Set("Authorization", "Basic dXNlcg==")
	assert.Equal(t, "", BearerToken(r))
}
