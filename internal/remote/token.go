package remote

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSubject is returned when a bearer token carries no subject claim.
var ErrNoSubject = errors.New("token has no subject")

// UserIDFromToken extracts the sub claim from a bearer token without
// verifying its signature. The backend verifies; the client only needs the
// id to scope its push subscription.
func UserIDFromToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("reading subject: %w", err)
	}
	if sub == "" {
		return "", ErrNoSubject
	}
	return sub, nil
}
