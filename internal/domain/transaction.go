package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a transaction.
type TransactionType string

const (
	TransactionTransfer       TransactionType = "TRANSFER"
	TransactionDeposit        TransactionType = "DEPOSIT"
	TransactionWithdrawal     TransactionType = "WITHDRAWAL"
	TransactionPayment        TransactionType = "PAYMENT"
	TransactionRequestPayment TransactionType = "REQUEST_PAYMENT"
	TransactionReceived       TransactionType = "RECEIVED"
	TransactionSent           TransactionType = "SENT"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTransfer, TransactionDeposit, TransactionWithdrawal, TransactionPayment,
		TransactionRequestPayment, TransactionReceived, TransactionSent:
		return true
	}
	return false
}

func (t TransactionType) String() string { return string(t) }

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// Valid reports whether s is a known transaction status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionPending, TransactionCompleted, TransactionFailed, TransactionCancelled:
		return true
	}
	return false
}

func (s TransactionStatus) String() string { return string(s) }

// Transaction is immutable from the client's point of view.
type Transaction struct {
	ID                  int64             `json:"id,omitempty"`
	TransactionNumber   string            `json:"transactionNumber"`
	SenderID            int64             `json:"senderId"`
	ReceiverID          int64             `json:"receiverId"`
	SourceWalletID      int64             `json:"sourceWalletId"`
	DestinationWalletID int64             `json:"destinationWalletId"`
	Amount              decimal.Decimal   `json:"amount"`
	Type                TransactionType   `json:"type"`
	Status              TransactionStatus `json:"status"`
	Description         string            `json:"description,omitempty"`
	ExchangeRate        *decimal.Decimal  `json:"exchangeRate,omitempty"`
	SourceCurrency      string            `json:"sourceCurrency,omitempty"`
	DestinationCurrency string            `json:"destinationCurrency,omitempty"`
	MoneyRequestID      *int64            `json:"moneyRequestId,omitempty"`
	QRCodeID            string            `json:"qrCodeId,omitempty"`
	CreatedAt           *time.Time        `json:"createdAt,omitempty"`
	Timestamp           string            `json:"timestamp,omitempty"`
	SenderName          string            `json:"senderName,omitempty"`
	ReceiverName        string            `json:"receiverName,omitempty"`
}

// OccurredAt returns when the transaction happened: createdAt when present,
// otherwise the parsed RFC 3339 timestamp. ok is false when neither is usable.
func (t Transaction) OccurredAt() (at time.Time, ok bool) {
	if t.CreatedAt != nil && !t.CreatedAt.IsZero() {
		return *t.CreatedAt, true
	}
	if t.Timestamp == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, t.Timestamp); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
