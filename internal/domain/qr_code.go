package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QRCode is a server-issued payable target.
type QRCode struct {
	ID            int64            `json:"id,omitempty"`
	QRID          string           `json:"qrId"`
	WalletNumber  string           `json:"walletNumber"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	IsAmountFixed bool             `json:"isAmountFixed"`
	IsOneTime     bool             `json:"isOneTime"`
	Description   string           `json:"description,omitempty"`
	IsActive      bool             `json:"isActive"`
	Currency      string           `json:"currency,omitempty"`
	CreatedAt     *time.Time       `json:"createdAt,omitempty"`
	ExpiresAt     *time.Time       `json:"expiresAt,omitempty"`
}

// Expired reports whether the code has an expiry at or before now.
func (q QRCode) Expired(now time.Time) bool {
	return q.ExpiresAt != nil && !q.ExpiresAt.After(now)
}

// CreateQRCodeRequest is the body of POST qr-codes.
type CreateQRCodeRequest struct {
	WalletNumber  string           `json:"walletNumber"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	IsAmountFixed bool             `json:"isAmountFixed"`
	IsOneTime     bool             `json:"isOneTime"`
	Description   string           `json:"description,omitempty"`
	ExpiresAt     *time.Time       `json:"expiresAt,omitempty"`
}

// PaymentQRCodeRequest describes a payment QR code with optional defaults.
// Nil booleans default to true; ExpirationMinutes is converted to ExpiresAt
// when ExpiresAt is not set.
type PaymentQRCodeRequest struct {
	WalletNumber      string
	Amount            *decimal.Decimal
	IsAmountFixed     *bool
	IsOneTime         *bool
	Description       string
	ExpiresAt         *time.Time
	ExpirationMinutes int
}

// QRCodeImage is the body returned by GET qr-codes/{id}/image.
type QRCodeImage struct {
	ID        string `json:"id,omitempty"`
	QRID      string `json:"qrId,omitempty"`
	ImageData string `json:"imageData"`
}

// QRPaymentRequest is the body of POST qr-codes/{id}/pay.
type QRPaymentRequest struct {
	SourceWalletNumber string           `json:"sourceWalletNumber,omitempty"`
	Amount             *decimal.Decimal `json:"amount,omitempty"`
	PaymentMethodID    string           `json:"paymentMethodId,omitempty"`
}
