package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus is the lifecycle state of a money request. All transitions
// are made by the backend.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestExpired   RequestStatus = "EXPIRED"
	RequestCompleted RequestStatus = "COMPLETED"
)

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestExpired, RequestCompleted:
		return true
	}
	return false
}

func (s RequestStatus) String() string { return string(s) }

// MoneyRequest is an ask for payment from one user to another.
type MoneyRequest struct {
	ID            int64           `json:"id,omitempty"`
	RequestNumber string          `json:"requestNumber"`
	RequesterID   int64           `json:"requesterId"`
	RequesteeID   int64           `json:"requesteeId"`
	WalletID      int64           `json:"walletId"`
	Amount        decimal.Decimal `json:"amount"`
	Status        RequestStatus   `json:"status"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     *time.Time      `json:"createdAt,omitempty"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty"`
	RequesterName string          `json:"requesterName,omitempty"`
	RequesteeName string          `json:"requesteeName,omitempty"`
	Currency      string          `json:"currency,omitempty"`
}

// CreateMoneyRequest is the body of POST money-requests.
type CreateMoneyRequest struct {
	RequesteeEmail string          `json:"requesteeEmail"`
	WalletNumber   string          `json:"walletNumber"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description,omitempty"`
}

// AcceptMoneyRequest is the body of POST money-requests/{id}/accept.
type AcceptMoneyRequest struct {
	SourceWalletID int64 `json:"sourceWalletId"`
}

// PayMoneyRequest is the body of POST money-requests/{id}/pay.
type PayMoneyRequest struct {
	PaymentMethodID int64 `json:"paymentMethodId"`
}
