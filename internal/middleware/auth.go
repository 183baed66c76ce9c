package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/R3E-Network/payflow/internal/logging"
)

// TokenAuth guards daemon endpoints with a static bearer token. An empty
// token disables the check.
type TokenAuth struct {
	token     []byte
	logger    *logging.Logger
	skipPaths map[string]bool
}

// NewTokenAuth creates the middleware. Requests to skipPaths pass unchecked.
func NewTokenAuth(token string, logger *logging.Logger, skipPaths []string) *TokenAuth {
	if logger == nil {
		logger = logging.NewDiscard()
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &TokenAuth{token: []byte(token), logger: logger, skipPaths: skip}
}

// Handler rejects requests without the configured bearer token.
func (m *TokenAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.token) == 0 || m.skipPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			m.reject(w, r, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), m.token) != 1 {
			m.reject(w, r, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *TokenAuth) reject(w http.ResponseWriter, r *http.Request, reason string) {
	m.logger.WithContext(r.Context()).WithField("path", r.URL.Path).Warn("daemon request rejected: " + reason)
	w.Header().Set("WWW-Authenticate", `Bearer realm="payflow"`)
	writeError(w, http.StatusUnauthorized, reason)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
