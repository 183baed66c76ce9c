package session

import (
	"net/http"
	"strings"

	"github.com/R3E-Network/payflow/internal/httputil"
)

const maxUnauthorizedBody = 64 << 10

// unauthenticatedPaths never carry a bearer token and never trigger refresh.
var unauthenticatedPaths = []string{"auth/login", "auth/signup", "auth/refresh"}

func isAuthPath(path string) bool {
	for _, p := range unauthenticatedPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Middleware attaches the bearer token to backend requests. Before sending it
// refreshes a token that is about to expire. A 401 answer triggers one
// refresh-and-retry; when that fails the session is ended and the logout
// hooks receive the failing path.
func (m *Manager) Middleware() httputil.Middleware {
	return func(next httputil.RoundTrip) httputil.RoundTrip {
		return func(req *http.Request) (*http.Response, error) {
			path := httputil.RequestPath(req)
			if isAuthPath(path) {
				return next(req)
			}
			ctx := req.Context()

			if _, err := m.CheckAndRefreshToken(ctx); err != nil {
				m.logger.WithContext(ctx).WithError(err).Debug("pre-request token refresh failed")
			}

			resp, err := next(withBearer(req, m.Token()))
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}

			body, _, _ := httputil.ReadAllWithLimit(resp.Body, maxUnauthorizedBody)
			resp.Body.Close()
			unauthorized := &httputil.Failure{
				Kind:       httputil.FailureStatus,
				Method:     req.Method,
				Path:       path,
				StatusCode: http.StatusUnauthorized,
				Body:       body,
			}

			if err := m.refresh(ctx, path); err != nil {
				m.end(ctx, ReasonUnauthorized, path)
				return nil, unauthorized
			}

			retry, err := replay(req)
			if err != nil {
				return nil, err
			}
			resp, err = next(withBearer(retry, m.Token()))
			if err == nil && resp.StatusCode == http.StatusUnauthorized {
				m.end(ctx, ReasonUnauthorized, path)
			}
			return resp, err
		}
	}
}

func withBearer(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	if token == "" {
		out.Header.Del("Authorization")
	} else {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out
}

func replay(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	return out, nil
}
