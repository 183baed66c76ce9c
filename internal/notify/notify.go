// Package notify delivers transient user-facing messages.
package notify

import (
	"sync"

	"github.com/sirupsen/logrus"

	apperrors "github.com/R3E-Network/payflow/internal/errors"
	"github.com/R3E-Network/payflow/internal/logging"
)

// Notifier surfaces success and failure messages to the user.
type Notifier interface {
	Success(message string)
	Error(details *apperrors.Details)
}

// Func adapts a pair of funcs to Notifier. Nil funcs are ignored.
type Func struct {
	OnSuccess func(string)
	OnError   func(*apperrors.Details)
}

func (f Func) Success(message string) {
	if f.OnSuccess != nil {
		f.OnSuccess(message)
	}
}

func (f Func) Error(details *apperrors.Details) {
	if f.OnError != nil && details != nil {
		f.OnError(details)
	}
}

// Log writes notifications to a logger.
type Log struct {
	logger *logging.Logger
}

// NewLog creates a log-backed notifier.
func NewLog(logger *logging.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Success(message string) {
	l.logger.WithField("kind", "success").Info(message)
}

func (l *Log) Error(details *apperrors.Details) {
	if details == nil {
		return
	}
	l.logger.WithFields(logrus.Fields{
		"kind":      "error",
		"category":  details.Category,
		"status":    details.StatusCode,
		"op":        details.Op,
		"technical": details.Technical,
	}).Warn(details.Message)
}

// Multi fans out to several notifiers.
type Multi []Notifier

func (m Multi) Success(message string) {
	for _, n := range m {
		n.Success(message)
	}
}

func (m Multi) Error(details *apperrors.Details) {
	for _, n := range m {
		n.Error(details)
	}
}

// Discard drops everything.
var Discard Notifier = Func{}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu        sync.Mutex
	successes []string
	errors    []*apperrors.Details
}

func (r *Recorder) Success(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, message)
}

func (r *Recorder) Error(details *apperrors.Details) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, details)
}

// Successes returns a copy of the recorded success messages.
func (r *Recorder) Successes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.successes...)
}

// Errors returns a copy of the recorded errors.
func (r *Recorder) Errors() []*apperrors.Details {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*apperrors.Details(nil), r.errors...)
}

// Reset forgets all recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = nil
	r.errors = nil
}
