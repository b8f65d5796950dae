package transport

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var unverifiedParser = jwt.NewParser()

// expiresWithin reports whether a JWT access token expires inside the
// given window. Tokens that do not parse as JWTs are treated as opaque
// and never expiring; the server's 401 remains the source of truth.
func expiresWithin(token string, window time.Duration, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time.Add(-window))
}
