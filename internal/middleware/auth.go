package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/ppopeskul/wa-ingest/internal/api"
)

// ServiceAuth guards operations that declare the bearerAuth scheme.
// An empty token rejects every guarded request.
func ServiceAuth(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Context().Value(api.BearerAuthScopes) == nil {
				next.ServeHTTP(w, r)
				return
			}

			if token == "" || !validBearer(r.Header.Get("Authorization"), token) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, errorBody(ErrorCodeUnauthorized, ErrorMessageUnauthorized, GetRequestID(r.Context())))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func validBearer(header, token string) bool {
	scheme, credentials, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(credentials)), []byte(token)) == 1
}
