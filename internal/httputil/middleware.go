package httputil

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/payflow/internal/logging"
	"github.com/R3E-Network/payflow/internal/metrics"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// RoundTrip sends one request and returns the raw response.
type RoundTrip func(*http.Request) (*http.Response, error)

// Middleware wraps a RoundTrip. It may inspect or rewrite the request, replay
// it, or short-circuit with an error.
type Middleware func(next RoundTrip) RoundTrip

// RequestID sets X-Request-ID from the context trace id, or a fresh uuid.
func RequestID() Middleware {
	return func(next RoundTrip) RoundTrip {
		return func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(RequestIDHeader) == "" {
				id := logging.GetTraceID(req.Context())
				if id == "" {
					id = uuid.NewString()
				}
				req.Header.Set(RequestIDHeader, id)
			}
			return next(req)
		}
	}
}

// RateLimit blocks until limiter admits the request or its context ends.
func RateLimit(limiter *rate.Limiter) Middleware {
	return func(next RoundTrip) RoundTrip {
		return func(req *http.Request) (*http.Response, error) {
			if limiter != nil {
				if err := limiter.Wait(req.Context()); err != nil {
					return nil, err
				}
			}
			return next(req)
		}
	}
}

// Logging logs every request at debug and failures at warn.
func Logging(logger *logging.Logger) Middleware {
	return func(next RoundTrip) RoundTrip {
		return func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next(req)

			entry := logger.WithContext(req.Context()).WithFields(logrus.Fields{
				"method":     req.Method,
				"path":       RequestPath(req),
				"request_id": req.Header.Get(RequestIDHeader),
				"duration":   time.Since(start).String(),
			})
			switch {
			case err != nil:
				entry.WithError(err).Warn("backend request failed")
			case resp.StatusCode >= 400:
				entry.WithField("status", resp.StatusCode).Warn("backend request rejected")
			default:
				entry.WithField("status", resp.StatusCode).Debug("backend request")
			}
			return resp, err
		}
	}
}

// Metrics records request counts and latency.
func Metrics() Middleware {
	return func(next RoundTrip) RoundTrip {
		return func(req *http.Request) (*http.Response, error) {
			done := metrics.BackendStarted(req.Method, req.URL.Path)
			resp, err := next(req)
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			done(status)
			return resp, err
		}
	}
}
