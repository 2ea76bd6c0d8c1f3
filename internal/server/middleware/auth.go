package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// StaticSubject is the subject recorded for callers using the static API token.
const StaticSubject = "static-token"

const tokenIssuer = "subtrack"

// Auth guards the report API. A request passes with the static token or with an
// HS256 JWT signed by jwtSecret. With both empty the API is open.
func Auth(staticToken, jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if staticToken == "" && jwtSecret == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := extractBearer(r); tok != "" {
				if staticToken != "" && subtle.ConstantTimeCompare([]byte(tok), []byte(staticToken)) == 1 {
					next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ContextKeySubject, StaticSubject)))
					return
				}
				if jwtSecret != "" {
					if ctx, ok := authenticateJWT(r.Context(), tok, jwtSecret); ok {
						next.ServeHTTP(w, r.WithContext(ctx))
						return
					}
				}
			}

			log.Debug().Str("path", r.URL.Path).Msg("auth: rejected request")
			w.Header().Set("WWW-Authenticate", `Bearer realm="subtrack"`)
			writeProblem(w, http.StatusUnauthorized, "missing or invalid credentials")
		})
	}
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func authenticateJWT(ctx context.Context, tokenStr, secret string) (context.Context, bool) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.Subject == "" {
		return ctx, false
	}

	return context.WithValue(ctx, ContextKeySubject, claims.Subject), true
}

// MintToken issues an HS256 API token for subject valid for ttl.
func MintToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("middleware.MintToken: secret is required")
	}
	if subject == "" {
		return "", errors.New("middleware.MintToken: subject is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("middleware.MintToken: ttl must be positive, got %s", ttl)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("middleware.MintToken: %w", err)
	}
	return signed, nil
}
