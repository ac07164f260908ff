package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/NemnemForStudy/WeEveryTrip-sub000/jwt"
)

var errSessionRevoked = errors.New("session revoked")

// RequireSession verifies the token like [RequireJWT] and additionally rejects
// tokens whose session id active reports as revoked.
func RequireSession(m *jwt.Manager, active func(ctx context.Context, sid string) bool) func(http.Handler) http.Handler {
	return Guard(func(ctx context.Context, token string) (*jwt.AccessClaims, error) {
		claims, err := m.ParseAccess(token)
		if err != nil {
			return nil, err
		}
		if !active(ctx, claims.SID) {
			return nil, errSessionRevoked
		}
		return claims, nil
	})
}
