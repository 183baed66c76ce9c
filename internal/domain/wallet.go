package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the user's account balance holder. Balance is authoritative only
// as last fetched from the backend.
type Wallet struct {
	ID           int64           `json:"id,omitempty"`
	UserID       int64           `json:"userId,omitempty"`
	Currency     string          `json:"currency"`
	Balance      decimal.Decimal `json:"balance"`
	WalletNumber string          `json:"walletNumber"`
	CreatedAt    *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time      `json:"updatedAt,omitempty"`
}

// CreateWalletRequest is the body of POST wallets.
type CreateWalletRequest struct {
	Currency string `json:"currency"`
}

// PaymentMethodType enumerates funding sources.
type PaymentMethodType string

const (
	PaymentMethodCard        PaymentMethodType = "CARD"
	PaymentMethodBankAccount PaymentMethodType = "BANK_ACCOUNT"
	PaymentMethodPayPal      PaymentMethodType = "PAYPAL"
	PaymentMethodWallet      PaymentMethodType = "WALLET"
)

// Valid reports whether t is a known payment method type.
func (t PaymentMethodType) Valid() bool {
	switch t {
	case PaymentMethodCard, PaymentMethodBankAccount, PaymentMethodPayPal, PaymentMethodWallet:
		return true
	}
	return false
}

func (t PaymentMethodType) String() string { return string(t) }

// PaymentMethod is a registered funding source.
type PaymentMethod struct {
	ID            int64             `json:"id,omitempty"`
	UserID        int64             `json:"userId,omitempty"`
	Type          PaymentMethodType `json:"type"`
	Provider      string            `json:"provider"`
	AccountNumber string            `json:"accountNumber,omitempty"`
	ExpiryDate    string            `json:"expiryDate,omitempty"`
	IsDefault     bool              `json:"isDefault,omitempty"`
	CreatedAt     *time.Time        `json:"createdAt,omitempty"`
}

// LastFour returns the last four characters of the account number.
func (p PaymentMethod) LastFour() string {
	if len(p.AccountNumber) <= 4 {
		return p.AccountNumber
	}
	return p.AccountNumber[len(p.AccountNumber)-4:]
}

// CreatePaymentMethodRequest is the body of POST payment-methods.
type CreatePaymentMethodRequest struct {
	Type          PaymentMethodType `json:"type"`
	Provider      string            `json:"provider"`
	AccountNumber string            `json:"accountNumber,omitempty"`
	ExpiryDate    string            `json:"expiryDate,omitempty"`
	IsDefault     bool              `json:"isDefault,omitempty"`
}

// AmountRequest is the body of wallets/deposit and wallets/withdraw.
type AmountRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethodID int64           `json:"paymentMethodId"`
}

// TopUpRequest is the body of wallets/topup.
type TopUpRequest struct {
	WalletNumber string          `json:"walletNumber"`
	Amount       decimal.Decimal `json:"amount"`
}

// TransferRequest is the body of transactions/transfer.
type TransferRequest struct {
	SourceWalletID          int64           `json:"sourceWalletId"`
	DestinationWalletNumber string          `json:"destinationWalletNumber"`
	Amount                  decimal.Decimal `json:"amount"`
	Description             string          `json:"description,omitempty"`
}
