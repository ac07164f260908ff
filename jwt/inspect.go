package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned by [Inspect] for opaque (non-JWT) tokens.
var ErrNotJWT = errors.New("token is not a JWT")

// Inspection is the unverified view of an access token.
type Inspection struct {
	Subject   string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Inspect decodes claims without checking the signature. Opaque tokens yield
// ErrNotJWT; callers treat them as having unknown expiry.
func Inspect(token string) (Inspection, error) {
	var claims AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Inspection{}, errors.Join(ErrNotJWT, err)
	}

	out := Inspection{
		Subject:   claims.Subject,
		SessionID: claims.SID,
	}
	if out.Subject == "" {
		out.Subject = claims.UID
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// ExpiresWithin reports whether the token expires before now+d. Tokens without an
// exp claim never expire by this measure.
func (i Inspection) ExpiresWithin(d time.Duration, now time.Time) bool {
	if i.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(i.ExpiresAt)
}
