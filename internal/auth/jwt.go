package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"thermowatch/internal/model"
)

// Claims jsou položky tokenu, které nás zajímají (Supabase-style JWT).
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthorizer ověřuje bearer tokeny podepsané HS256 sdíleným tajemstvím
// poskytovatele identit. Vydávání tokenů není naše starost.
type JWTAuthorizer struct {
	secret      []byte
	mutateRoles map[string]bool
	parser      *jwt.Parser
}

// NewJWTAuthorizer vytvoří autorizátor. mutateRoles jsou role, které smí
// měnit limity (typicky "authenticated").
func NewJWTAuthorizer(secret string, mutateRoles []string) *JWTAuthorizer {
	roles := make(map[string]bool, len(mutateRoles))
	for _, r := range mutateRoles {
		if r = strings.TrimSpace(r); r != "" {
			roles[r] = true
		}
	}
	return &JWTAuthorizer{
		secret:      []byte(secret),
		mutateRoles: roles,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

// Authorize ověří token a vrátí volajícího. Neplatný token = ErrUnauthorized.
// Platný token bez oprávněné role vrátí Actor bez práva měnit limity;
// odmítnutí pak udělá služba.
func (a *JWTAuthorizer) Authorize(_ context.Context, token string) (model.Actor, error) {
	if token == "" {
		return model.Actor{}, fmt.Errorf("%w: authorization token required", model.ErrUnauthorized)
	}

	var claims Claims
	_, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: invalid or expired token: %w", model.ErrUnauthorized, err)
	}

	subject, _ := claims.GetSubject()
	return model.Actor{
		ID:                  subject,
		CanMutateThresholds: subject != "" && a.mutateRoles[claims.Role],
	}, nil
}

// BearerToken vytáhne token z hlavičky "Authorization: Bearer <TOKEN>".
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
