package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// AuthService guards the status/control API behind a single bearer token,
// matching this engine's single-operator deployment model (adapted from
// the teacher's multi-user AuthService, which modeled API keys against
// per-user roles that have no equivalent here).
type AuthService struct {
	apiKey string
}

// NewAuthService builds an AuthService around a fixed operator key. An
// empty key is replaced by a generated one, returned as the second result
// so the caller can log it and local/dev use still works.
func NewAuthService(apiKey string) (*AuthService, string) {
	generated := ""
	if apiKey == "" {
		apiKey = "sandwich_" + generateRandomString(32)
		generated = apiKey
	}
	return &AuthService{apiKey: apiKey}, generated
}

// AuthMiddleware rejects requests whose Bearer token doesn't match the
// configured operator key.
func (a *AuthService) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "missing or malformed Authorization header", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(a.apiKey)) != 1 {
			http.Error(w, "invalid API key", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyContextKey, parts[1])
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}
