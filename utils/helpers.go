package utils

import (
	"net/http"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"

	"github.com/tomhardin/cardstack-api/auth"
)

// GetSubject returns the caller's identity: the subject of a validated Auth0
// bearer token, or the subject of a local auth_token cookie session.
func GetSubject(r *http.Request) (string, bool) {
	claims, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	if ok && claims.RegisteredClaims.Subject != "" {
		return claims.RegisteredClaims.Subject, true
	}

	cookie, err := r.Cookie("auth_token")
	if err != nil {
		return "", false
	}
	subject, err := auth.ParseToken(cookie.Value)
	if err != nil {
		return "", false
	}
	return subject, true
}
