package auth

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// userClaims lists the claim names the backend has used for the user id.
var userClaims = []string{"sub", "userId", "user_id", "id"}

// ParseToken reads the user id and expiry from a JWT bearer token without
// verifying its signature; the backend remains the authority. Opaque tokens
// yield a Session without claims.
func ParseToken(token string) Session {
	s := Session{Token: token}
	if token == "" {
		return s
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return s
	}

	for _, name := range userClaims {
		if id := claimString(claims[name]); id != "" {
			s.UserID = id
			break
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
