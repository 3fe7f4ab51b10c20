package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	jwtSecret []byte
	jwtTTL    = 72 * time.Hour
)

// Init sets the signing secret and token lifetime. Called once at
// startup before any route is served.
func Init(secret string, ttl time.Duration) {
	jwtSecret = []byte(secret)
	if ttl > 0 {
		jwtTTL = ttl
	}
}

// TokenFor issues a token for an existing user id. The in-memory dev
// mode uses it to print ready-to-use credentials for the seeded users.
func TokenFor(userID string) (string, error) {
	return issueToken(userID)
}

func issueToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID,
		"exp": time.Now().Add(jwtTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}
