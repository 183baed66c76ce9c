// Package errors classifies failures into a stable category and the message
// shown to the user.
//
// Classify is pure: the same failure always yields the same Details.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/payflow/internal/httputil"
)

// Category is the coarse failure class.
type Category string

const (
	CategoryNetwork Category = "network"
	CategoryClient  Category = "client"
	CategoryServer  Category = "server"
	CategoryUnknown Category = "unknown"
)

// User-facing messages.
const (
	MsgOffline          = "You are offline. Please check your internet connection."
	MsgUnreachable      = "Unable to reach the server. Please check your connection and try again."
	MsgTimeout          = "The request timed out. Please try again."
	MsgSessionExpired   = "Your session has expired. Please log in again."
	MsgForbidden        = "You don't have permission to perform this action."
	MsgInvalidRequest   = "Invalid request. Please check your data."
	MsgServer           = "Server error. Please try again later."
	MsgNotFound         = "Resource not found."
	MsgConflict         = "Conflict with existing data."
	MsgUnexpected       = "An unexpected error occurred. Please try again."
	MsgMalformedPayload = "Received an unexpected response from the server."
	MsgInvalidToken     = "Invalid authentication token received."
	MsgMissingImage     = "QR code image is not available."
	MsgInvalidQRCode    = "This QR code is not a valid PayFlow payment code."
)

// Sentinel errors raised locally, without a backend round trip.
var (
	ErrNotAuthenticated = stderrors.New("not authenticated")
	ErrInvalidToken     = stderrors.New("invalid token")
	ErrMissingImage     = stderrors.New("qr code image data missing")
	ErrInvalidQRCode    = stderrors.New("invalid qr code id")
)

// Details is a classified failure. It is what stores record and what the
// notifier shows.
type Details struct {
	Category   Category
	Message    string
	StatusCode int
	Technical  string
	// Op names the operation that failed, e.g. "load wallet".
	Op string

	cause error
}

func (d *Details) Error() string { return d.Message }

func (d *Details) Unwrap() error { return d.cause }

// Is matches another *Details with the same category, status and message.
func (d *Details) Is(target error) bool {
	other, ok := target.(*Details)
	if !ok {
		return false
	}
	return d.Category == other.Category && d.StatusCode == other.StatusCode && d.Message == other.Message
}

// InCategory reports whether d belongs to c.
func (d *Details) InCategory(c Category) bool { return d != nil && d.Category == c }

// WithOp returns a copy of d tagged with op.
func (d *Details) WithOp(op string) *Details {
	cp := *d
	cp.Op = op
	return &cp
}

// Classify maps err to Details. A nil err yields nil. A *Details passes
// through unchanged.
func Classify(err error) *Details {
	if err == nil {
		return nil
	}

	var details *Details
	if stderrors.As(err, &details) {
		return details
	}

	var failure *httputil.Failure
	if !stderrors.As(err, &failure) {
		return classifyLocal(err)
	}

	switch failure.Kind {
	case httputil.FailureOffline:
		return newDetails(CategoryNetwork, MsgOffline, 0, err)
	case httputil.FailureTransport:
		return newDetails(CategoryNetwork, MsgUnreachable, 0, err)
	case httputil.FailureTimeout:
		return newDetails(CategoryNetwork, MsgTimeout, 0, err)
	case httputil.FailureDecode:
		return newDetails(CategoryUnknown, MsgMalformedPayload, failure.StatusCode, err)
	}
	return classifyStatus(failure, err)
}

func classifyStatus(failure *httputil.Failure, err error) *Details {
	code := failure.StatusCode
	switch {
	case code == http.StatusUnauthorized:
		return newDetails(CategoryClient, MsgSessionExpired, code, err)
	case code == http.StatusForbidden:
		return newDetails(CategoryClient, MsgForbidden, code, err)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		msg := ExtractMessage(failure.Body)
		if msg == "" {
			msg = MsgInvalidRequest
		}
		return newDetails(CategoryClient, msg, code, err)
	case code >= 500:
		return newDetails(CategoryServer, MsgServer, code, err)
	case code == http.StatusNotFound:
		return newDetails(CategoryUnknown, MsgNotFound, code, err)
	case code == http.StatusConflict:
		return newDetails(CategoryUnknown, MsgConflict, code, err)
	}

	msg := ExtractMessage(failure.Body)
	if msg == "" {
		msg = "Unknown error"
	}
	return newDetails(CategoryUnknown, fmt.Sprintf("Error (%d): %s", code, msg), code, err)
}

func classifyLocal(err error) *Details {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return newDetails(CategoryNetwork, MsgTimeout, 0, err)
	case stderrors.Is(err, ErrNotAuthenticated):
		return newDetails(CategoryClient, MsgSessionExpired, 0, err)
	case stderrors.Is(err, ErrInvalidToken):
		return newDetails(CategoryClient, MsgInvalidToken, 0, err)
	case stderrors.Is(err, ErrMissingImage):
		return newDetails(CategoryUnknown, MsgMissingImage, 0, err)
	case stderrors.Is(err, ErrInvalidQRCode):
		return newDetails(CategoryClient, MsgInvalidQRCode, 0, err)
	}
	return newDetails(CategoryUnknown, MsgUnexpected, 0, err)
}

func newDetails(category Category, msg string, code int, cause error) *Details {
	return &Details{
		Category:   category,
		Message:    msg,
		StatusCode: code,
		Technical:  technical(cause),
		cause:      cause,
	}
}

func technical(err error) string {
	var failure *httputil.Failure
	if stderrors.As(err, &failure) && len(failure.Body) > 0 {
		body := strings.TrimSpace(string(failure.Body))
		if len(body) > 512 {
			body = body[:512] + "...(truncated)"
		}
		return err.Error() + ": " + body
	}
	return err.Error()
}

// ExtractMessage pulls a user-facing message out of an error body: the
// top-level "message", else the "errors" list joined with ", ". Elements of
// "errors" may be {"message": ...} objects or plain strings.
func ExtractMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	parsed := gjson.ParseBytes(body)
	if msg := strings.TrimSpace(parsed.Get("message").String()); msg != "" {
		return msg
	}

	var parts []string
	parsed.Get("errors").ForEach(func(_, item gjson.Result) bool {
		var text string
		switch {
		case item.IsObject():
			text = item.Get("message").String()
		case item.Type == gjson.String:
			text = item.String()
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
		return true
	})
	return strings.Join(parts, ", ")
}
