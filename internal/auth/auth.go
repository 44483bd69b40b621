// Package auth resolves the caller identity from bearer tokens minted by
// the external identity provider. Tokens are HS256 JWTs verified against a
// shared secret; the subject claim carries the user id. No accounts or
// credentials live in this process.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Identity is the authenticated caller every transaction is scoped to.
type Identity struct {
	UserID string
}

type claims struct {
	jwt.RegisteredClaims
}

type contextKey struct{}

// Verifier checks bearer tokens against the provider's shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyToken parses and validates a raw JWT, returning the identity it carries.
func (v *Verifier) VerifyToken(token string) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return &Identity{UserID: c.Subject}, nil
}

// ValidateBearer extracts and verifies the token from an Authorization header.
func (v *Verifier) ValidateBearer(authHeader string) (*Identity, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, fmt.Errorf("no authorization bearer token provided")
	}
	return v.VerifyToken(parts[1])
}

// Middleware rejects requests without a resolvable identity and stores the
// identity in the request context for handlers.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := v.ValidateBearer(r.Header.Get("Authorization"))
		if err != nil {
			slog.WarnContext(r.Context(), "Unauthorized request",
				"error", err,
				"method", r.Method,
				"url", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *identity)))
	})
}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext extracts the authenticated identity, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// GenerateToken mints a token for a user id. Used by tests and local
// tooling; production tokens come from the identity provider.
func GenerateToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return t.SignedString([]byte(secret))
}
