// Package domain defines the entities exchanged with the PayFlow backend.
//
// Entities are plain values owned by exactly one store. Stores never share
// pointers to each other's data; cross-entity consistency is reached by
// re-fetching.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the authenticated account holder.
type User struct {
	ID          int64      `json:"id,omitempty"`
	Email       string     `json:"email"`
	FullName    string     `json:"fullName"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
	Role        string     `json:"role,omitempty"`
	Enabled     bool       `json:"enabled,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// LoginRequest is the body of POST auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpRequest is the body of POST auth/signup.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// AuthResponse is returned by auth/login, auth/signup and auth/refresh.
type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// ChangePasswordRequest is the body of POST users/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePasswordResponse is returned by users/change-password.
type ChangePasswordResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ExchangeRate is a public currency pair quote.
type ExchangeRate struct {
	ID             int64           `json:"id,omitempty"`
	BaseCurrency   string          `json:"baseCurrency"`
	TargetCurrency string          `json:"targetCurrency"`
	Rate           decimal.Decimal `json:"rate"`
	LastUpdated    *time.Time      `json:"lastUpdated,omitempty"`
}

// Page is the backend's paginated list envelope.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Size          int   `json:"size"`
	Number        int   `json:"number"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}
