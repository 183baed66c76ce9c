package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/R3E-Network/payflow/internal/errors"
)

// Identity is what the client learns from an access token. The signature is
// never verified here; the backend does that on every request.
type Identity struct {
	UserID   int64
	Email    string
	FullName string
	Role     string
	// Expiry is zero when the token carries no exp claim.
	Expiry time.Time
}

var tokenParser = jwt.NewParser()

// DecodeToken reads the identity claims out of a JWT without verifying it.
func DecodeToken(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("session: empty token: %w", apperrors.ErrInvalidToken)
	}

	claims := jwt.MapClaims{}
	if _, _, err := tokenParser.ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("session: decode token: %v: %w", err, apperrors.ErrInvalidToken)
	}

	id := Identity{
		UserID:   numericClaim(claims["id"]),
		FullName: stringClaim(claims["fullName"]),
		Role:     stringClaim(claims["role"]),
	}
	if sub, err := claims.GetSubject(); err == nil {
		id.Email = sub
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Identity{}, fmt.Errorf("session: token exp: %v: %w", err, apperrors.ErrInvalidToken)
	}
	if exp != nil {
		id.Expiry = exp.Time
	}
	return id, nil
}

func stringClaim(v any) string {
	s, _ := v.(string)
	return s
}

func numericClaim(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}
