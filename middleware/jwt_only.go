package middleware

import (
	"context"
	"net/http"

	"github.com/NemnemForStudy/WeEveryTrip-sub000/jwt"
)

// RequireJWT accepts any token m can verify.
func RequireJWT(m *jwt.Manager) func(http.Handler) http.Handler {
	return Guard(func(_ context.Context, token string) (*jwt.AccessClaims, error) {
		return m.ParseAccess(token)
	})
}
