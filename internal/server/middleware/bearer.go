package middleware

import (
	"net/http"
	"strings"

	"github.com/commentors-net/Aegis-Mint/internal/platform/httpjson"
)

const bearerPrefix = "bearer "

// TokenValidator validates an access token and returns its subject.
type TokenValidator interface {
	ValidateAccess(token string) (userID string, err error)
}

// BearerAuth rejects requests without a valid Bearer access token and stores the user id in context.
func BearerAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				httpjson.Unauthorized(w)
				return
			}
			userID, err := tokens.ValidateAccess(token)
			if err != nil {
				httpjson.Unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
