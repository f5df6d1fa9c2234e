package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-pasar/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Service *Service
}

// Authenticate attaches the user id to the context when a valid bearer token
// is present. Requests without a token, or with a bad one, pass through
// unauthenticated; enforcement belongs to RequireAuth.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, err := m.subject(r); err == nil {
			r = r.WithContext(common.WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests that do not carry a valid access token.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.subject(r)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
				common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
			} else {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), userID)))
	})
}

func (m Middleware) subject(r *http.Request) (string, error) {
	if m.Service == nil {
		return "", errors.New("auth: service not configured")
	}
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return "", errNoToken
	}
	return m.Service.ParseAccessToken(token)
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	const scheme = "bearer "
	if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
		return strings.TrimSpace(header[len(scheme):])
	}
	return ""
}
