// Package store implements the domain stores: wallet, transactions, money
// requests, QR codes and exchange rates.
//
// Each store owns its state exclusively and publishes snapshots through a
// state.Container. Store methods return a *errors.Details on failure after
// recording it on the store and sending it to the notifier. Data loaded
// earlier is never discarded by a failure.
package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/payflow/internal/clock"
	apperrors "github.com/R3E-Network/payflow/internal/errors"
	"github.com/R3E-Network/payflow/internal/httputil"
	"github.com/R3E-Network/payflow/internal/logging"
	"github.com/R3E-Network/payflow/internal/metrics"
	"github.com/R3E-Network/payflow/internal/notify"
	"github.com/R3E-Network/payflow/internal/state"
)

// Deps are the collaborators shared by all stores.
type Deps struct {
	Gateway  *httputil.Gateway
	Notifier notify.Notifier
	Logger   *logging.Logger
	Clock    clock.Clock
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = notify.Discard
	}
	if d.Logger == nil {
		d.Logger = logging.NewDiscard()
	}
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	return d
}

// AfterPaymentFunc runs after an operation that moved money succeeded, so the
// initiating flow can reload another store (usually the wallet).
type AfterPaymentFunc func(ctx context.Context) error

// base carries the reporting helpers every store uses.
type base struct {
	name string
	Deps
}

func newBase(name string, deps Deps) base {
	return base{name: name, Deps: deps.withDefaults()}
}

// report classifies err, notifies, logs and counts it.
func (b base) report(ctx context.Context, op string, err error) *apperrors.Details {
	details := apperrors.Classify(err).WithOp(op)
	b.Notifier.Error(details)
	b.Logger.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
		"store":    b.name,
		"op":       op,
		"category": details.Category,
		"status":   details.StatusCode,
	}).Warn("store operation failed")
	metrics.RecordStoreOperation(b.name, op, err)
	return details
}

func (b base) succeeded(ctx context.Context, op string) {
	b.Logger.WithContext(ctx).WithFields(logrus.Fields{"store": b.name, "op": op}).Debug("store operation succeeded")
	metrics.RecordStoreOperation(b.name, op, nil)
}

// load runs a read with IsLoading set and applies the result on success.
func load[T, R any](ctx context.Context, b base, c *state.Container[T], op string,
	fetch func(context.Context) (R, error), apply func(data *T, result R)) error {
	c.Update(func(s *state.Snapshot[T]) { s.IsLoading = true; s.Err = nil })

	result, err := fetch(ctx)
	if err != nil {
		details := b.report(ctx, op, err)
		c.Update(func(s *state.Snapshot[T]) { s.IsLoading = false; s.Err = details })
		return details
	}

	c.Update(func(s *state.Snapshot[T]) {
		apply(&s.Data, result)
		s.IsLoading = false
		s.Loaded = true
	})
	b.succeeded(ctx, op)
	return nil
}

// process runs a mutation with IsProcessing set, applies the result and
// sends the success message. apply may be nil.
func process[T, R any](ctx context.Context, b base, c *state.Container[T], op string,
	send func(context.Context) (R, error), apply func(data *T, result R), success string) (R, error) {
	c.Update(func(s *state.Snapshot[T]) { s.IsProcessing = true; s.Err = nil })

	result, err := send(ctx)
	if err != nil {
		details := b.report(ctx, op, err)
		c.Update(func(s *state.Snapshot[T]) { s.IsProcessing = false; s.Err = details })
		var zero R
		return zero, details
	}

	c.Update(func(s *state.Snapshot[T]) {
		if apply != nil {
			apply(&s.Data, result)
		}
		s.IsProcessing = false
	})
	if success != "" {
		b.Notifier.Success(success)
	}
	b.succeeded(ctx, op)
	return result, nil
}

// fail records a locally detected error (no backend round trip).
func fail[T any](ctx context.Context, b base, c *state.Container[T], op string, err error) error {
	details := b.report(ctx, op, err)
	c.Update(func(s *state.Snapshot[T]) {
		s.IsLoading = false
		s.IsProcessing = false
		s.Err = details
	})
	return details
}

// clearError drops the recorded error without touching data.
func clearError[T any](c *state.Container[T]) {
	c.Update(func(s *state.Snapshot[T]) { s.Err = nil })
}

func getJSON[R any](gw *httputil.Gateway, path string, query url.Values) func(context.Context) (R, error) {
	return func(ctx context.Context) (R, error) {
		var out R
		err := gw.GetJSON(ctx, path, query, &out)
		return out, err
	}
}

func postJSON[R any](gw *httputil.Gateway, path string, body any) func(context.Context) (R, error) {
	return func(ctx context.Context) (R, error) {
		var out R
		if body == nil {
			body = struct{}{}
		}
		err := gw.PostJSON(ctx, path, body, &out)
		return out, err
	}
}

func deleteJSON[R any](gw *httputil.Gateway, path string) func(context.Context) (R, error) {
	return func(ctx context.Context) (R, error) {
		var out R
		err := gw.DeleteJSON(ctx, path, &out)
		return out, err
	}
}

func idPath(prefix string, id int64, suffix ...string) string {
	p := fmt.Sprintf("%s/%d", prefix, id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// FormatAmount renders a dollar amount the way notifications show it.
func FormatAmount(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

func itoa(n int) string { return strconv.Itoa(n) }

// without returns a new slice holding the elements of items for which drop
// is false.
func without[E any](items []E, drop func(E) bool) []E {
	out := make([]E, 0, len(items))
	for _, it := range items {
		if !drop(it) {
			out = append(out, it)
		}
	}
	return out
}

// appended returns a new slice with v after items.
func appended[E any](items []E, v E) []E {
	out := make([]E, 0, len(items)+1)
	out = append(out, items...)
	return append(out, v)
}

// replaced returns a new slice where elements matching v are swapped for v.
func replaced[E any](items []E, v E, same func(a, b E) bool) []E {
	out := make([]E, len(items))
	for i, it := range items {
		if same(it, v) {
			out[i] = v
		} else {
			out[i] = it
		}
	}
	return out
}
