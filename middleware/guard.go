package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/NemnemForStudy/WeEveryTrip-sub000/jwt"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by a guard.
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return claims, ok
}

// Validator checks a bearer token on the serving side.
type Validator func(ctx context.Context, token string) (*jwt.AccessClaims, error)

// Guard answers 401 for requests whose bearer token fails validate. It is the
// serving-side counterpart of [Transport] and backs the fake backends used in
// tests and the load generator.
func Guard(validate Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validate == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
