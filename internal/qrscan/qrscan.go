// Package qrscan reads and writes the payflow:// payment URIs encoded in
// payment QR codes.
package qrscan

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Scheme is the URI scheme of payment codes.
	Scheme = "payflow"
	// Host is the only action payment codes carry.
	Host = "payment"

	prefix = Scheme + "://" + Host + "?"
)

var (
	// ErrNotPaymentURI is returned for content that is not a payflow payment URI.
	ErrNotPaymentURI = errors.New("qrscan: not a payflow payment uri")
	// ErrMissingQRID is returned when the URI has no qr_id.
	ErrMissingQRID = errors.New("qrscan: qr_id is missing")
	// ErrInvalidQRID is returned for a qr_id that is not a single path segment.
	ErrInvalidQRID = errors.New("qrscan: invalid qr_id")
)

// CheckID reports whether id can name a QR code: non-empty, no '/' and not
// a dot segment.
func CheckID(id string) error {
	switch {
	case id == "":
		return ErrMissingQRID
	case id == "." || id == "..", strings.ContainsAny(id, "/\\"):
		return fmt.Errorf("%w %q", ErrInvalidQRID, id)
	}
	return nil
}

// Payment is the content of a payment URI. Only QRID is required.
type Payment struct {
	QRID         string
	WalletNumber string
	Currency     string
	Amount       *decimal.Decimal
	Description  string
}

// Parse decodes content of the form
// payflow://payment?qr_id=X&wallet=Y&currency=Z&amount=N&description=D.
// Empty optional parameters are treated as absent.
func Parse(content string) (Payment, error) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, prefix) {
		return Payment{}, ErrNotPaymentURI
	}
	u, err := url.Parse(content)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrNotPaymentURI, err)
	}
	q := u.Query()

	p := Payment{
		QRID:         q.Get("qr_id"),
		WalletNumber: q.Get("wallet"),
		Currency:     q.Get("currency"),
		Description:  q.Get("description"),
	}
	if err := CheckID(p.QRID); err != nil {
		return Payment{}, err
	}
	if raw := q.Get("amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return Payment{}, fmt.Errorf("qrscan: invalid amount %q: %w", raw, err)
		}
		p.Amount = &amount
	}
	return p, nil
}

// Build renders p as a payment URI. Parameters are written in a fixed order
// so equal payments produce equal URIs.
func Build(p Payment) (string, error) {
	if err := CheckID(p.QRID); err != nil {
		return "", err
	}
	params := []struct{ key, value string }{
		{"qr_id", p.QRID},
		{"wallet", p.WalletNumber},
		{"currency", p.Currency},
		{"amount", ""},
		{"description", p.Description},
	}
	if p.Amount != nil {
		params[3].value = p.Amount.String()
	}

	var b strings.Builder
	b.WriteString(prefix)
	first := true
	for _, kv := range params {
		if kv.value == "" {
			continue
		}
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString(kv.key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.value))
	}
	return b.String(), nil
}
