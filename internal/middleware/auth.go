package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/listio/internal/auth"
)

// SessionSource yields the session stored by the signed-in user.
type SessionSource interface {
	Session() auth.Session
}

// RequireSession attaches a backend session to the request context. A bearer
// token sent by the caller takes precedence over the stored session. Requests
// without a valid, unexpired session get 401.
func RequireSession(src SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := src.Session()
			if token, ok := bearer(r); ok {
				sess = auth.ParseToken(token)
			}
			if !sess.Valid(time.Now()) {
				writeError(w, http.StatusUnauthorized, "not signed in")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
