// Package httputil is the single outbound channel to the PayFlow backend.
//
// Every call goes through Gateway.Do, which joins the path onto the base URL,
// bounds the call with a timeout, runs the middleware chain and converts every
// failure into a *Failure.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 8 << 20
)

// =============================================================================
// Gateway
// =============================================================================

// Config configures a Gateway.
type Config struct {
	// BaseURL is the backend API root, e.g. http://localhost:8080/api.
	BaseURL string
	// Timeout bounds every request unless the request overrides it.
	Timeout time.Duration
	// HTTPClient defaults to a client with a cookie jar.
	HTTPClient *http.Client
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64
	// Online reports connectivity. A nil func means always online.
	Online func() bool
}

// Gateway issues requests against one backend base URL.
type Gateway struct {
	baseURL      *url.URL
	httpClient   *http.Client
	timeout      time.Duration
	maxBodyBytes int64
	online       func() bool
	middleware   []Middleware
}

// Request describes one backend call. Path is relative to the base URL.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Timeout time.Duration
	// Binary asks for the raw body instead of JSON.
	Binary bool
}

// Response is a successful backend answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New validates cfg and creates a Gateway.
func New(cfg Config) (*Gateway, error) {
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	client := cfg.HTTPClient
	if client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httputil: cookie jar: %w", err)
		}
		client = &http.Client{Jar: jar}
	}

	return &Gateway{
		baseURL:      base,
		httpClient:   client,
		timeout:      timeout,
		maxBodyBytes: maxBody,
		online:       cfg.Online,
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return nil, fmt.Errorf("httputil: base URL is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("httputil: invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("httputil: base URL scheme must be http or https")
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("httputil: base URL host is required")
	}
	if parsed.User != nil {
		return nil, fmt.Errorf("httputil: base URL must not include user info")
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed, nil
}

// BaseURL returns the validated base URL.
func (g *Gateway) BaseURL() string { return g.baseURL.String() }

// Use appends middleware. The first registered middleware is the outermost.
func (g *Gateway) Use(mw ...Middleware) {
	g.middleware = append(g.middleware, mw...)
}

// Do executes req and returns the response or a *Failure.
func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	path := strings.TrimLeft(req.Path, "/")
	fail := func(kind FailureKind, err error) *Failure {
		return &Failure{Kind: kind, Method: method, Path: path, Err: err}
	}

	if g.online != nil && !g.online() {
		return nil, fail(FailureOffline, nil)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.timeout
	}
	ctx, cancel := context.WithTimeout(withPath(ctx, path), timeout)
	defer cancel()

	httpReq, err := g.newRequest(ctx, method, path, req)
	if err != nil {
		return nil, fail(FailureTransport, err)
	}

	resp, err := g.chain()(httpReq)
	if err != nil {
		var failure *Failure
		if errors.As(err, &failure) {
			return nil, failure
		}
		if isTimeout(ctx, err) {
			return nil, fail(FailureTimeout, err)
		}
		return nil, fail(FailureTransport, err)
	}
	defer resp.Body.Close()

	body, err := ReadAllStrict(resp.Body, g.maxBodyBytes)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fail(FailureTimeout, err)
		}
		return nil, fail(FailureTransport, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode >= 400 {
		return nil, &Failure{
			Kind:       FailureStatus,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (g *Gateway) newRequest(ctx context.Context, method, path string, req Request) (*http.Request, error) {
	target := g.baseURL.JoinPath(path)
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var httpReq *http.Request
	var err error
	if payload != nil {
		// bytes.Reader bodies get a GetBody so middleware can replay them.
		httpReq, err = http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(payload))
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, target.String(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Binary {
		httpReq.Header.Set("Accept", "*/*")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	return httpReq, nil
}

func (g *Gateway) chain() RoundTrip {
	var rt RoundTrip = g.httpClient.Do
	for i := len(g.middleware) - 1; i >= 0; i-- {
		rt = g.middleware[i](rt)
	}
	return rt
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// =============================================================================
// JSON helpers
// =============================================================================

// DecodeJSON decodes the response body into target. An empty body or nil
// target is a no-op.
func (r *Response) DecodeJSON(target any) error {
	if target == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (g *Gateway) doJSON(ctx context.Context, req Request, out any) error {
	resp, err := g.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.DecodeJSON(out); err != nil {
		return &Failure{
			Kind:       FailureDecode,
			Method:     strings.ToUpper(req.Method),
			Path:       strings.TrimLeft(req.Path, "/"),
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Err:        err,
		}
	}
	return nil
}

// GetJSON performs a GET and decodes the JSON body into out.
func (g *Gateway) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return g.doJSON(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// PostJSON performs a POST with a JSON body and decodes the answer into out.
func (g *Gateway) PostJSON(ctx context.Context, path string, body, out any) error {
	return g.doJSON(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// DeleteJSON performs a DELETE and decodes the answer into out.
func (g *Gateway) DeleteJSON(ctx context.Context, path string, out any) error {
	return g.doJSON(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

// GetBinary performs a GET and returns the raw body.
func (g *Gateway) GetBinary(ctx context.Context, path string) ([]byte, error) {
	resp, err := g.Do(ctx, Request{Method: http.MethodGet, Path: path, Binary: true})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// =============================================================================
// Request path in context
// =============================================================================

type pathKey struct{}

func withPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathKey{}, path)
}

// RequestPath returns the base-relative path of the request being executed,
// e.g. "wallets/primary". Middleware uses it to match routes.
func RequestPath(r *http.Request) string {
	if path, ok := r.Context().Value(pathKey{}).(string); ok {
		return path
	}
	return strings.TrimLeft(r.URL.Path, "/")
}
