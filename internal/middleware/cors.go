package middleware

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// originSet matches request origins against a configured list. Entries are
// exact origins, "*", or a ".domain" suffix.
type originSet struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string
}

func newOriginSet(origins []string) originSet {
	s := originSet{exact: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		switch {
		case o == "*":
			s.any = true
		case strings.HasPrefix(o, "."):
			s.suffixes = append(s.suffixes, o)
		case o != "":
			s.exact[strings.TrimRight(o, "/")] = struct{}{}
		}
	}
	return s
}

func (s originSet) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if s.any {
		return true
	}
	if _, ok := s.exact[origin]; ok {
		return true
	}
	for _, suffix := range s.suffixes {
		if strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

// CORS lets browser dashboards on the given origins read the daemon's
// read-only endpoints. Preflight requests are answered directly.
func CORS(origins []string) mux.MiddlewareFunc {
	allowed := newOriginSet(origins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin := r.Header.Get("Origin"); allowed.allows(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodOptions)
				h.Set("Access-Control-Allow-Headers", "Authorization, "+TraceHeader)
				h.Set("Access-Control-Expose-Headers", TraceHeader)
				h.Set("Access-Control-Max-Age", "600")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
