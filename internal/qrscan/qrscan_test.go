package qrscan

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p, err := Parse("payflow://payment?qr_id=QR-abc123&wallet=W-77&currency=USD&amount=12.50&description=Lunch+with+Bob")
	require.NoError(t, err)
	assert.Equal(t, "QR-abc123", p.QRID)
	assert.Equal(t, "W-77", p.WalletNumber)
	assert.Equal(t, "USD", p.Currency)
	require.NotNil(t, p.Amount)
	assert.True(t, decimal.RequireFromString("12.5").Equal(*p.Amount))
	assert.Equal(t, "Lunch with Bob", p.Description)
}

func TestParse_OnlyQRID(t *testing.T) {
	p, err := Parse("  payflow://payment?qr_id=QR-1&amount=  ")
	require.NoError(t, err)
	assert.Equal(t, Payment{QRID: "QR-1"}, p)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"other scheme", "https://payflow.example/payment?qr_id=1", ErrNotPaymentURI},
		{"other action", "payflow://refund?qr_id=1", ErrNotPaymentURI},
		{"plain text", "hello", ErrNotPaymentURI},
		{"no qr id", "payflow://payment?wallet=W-1", ErrMissingQRID},
		{"qr id with slashes", "payflow://payment?qr_id=..%2Fmoney-requests%2F7", ErrInvalidQRID},
		{"qr id dot dot", "payflow://payment?qr_id=..", ErrInvalidQRID},
		{"qr id dot", "payflow://payment?qr_id=.", ErrInvalidQRID},
		{"qr id backslash", "payflow://payment?qr_id=a%5Cb", ErrInvalidQRID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.content)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Parse("payflow://payment?qr_id=1&amount=ten")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid amount")
}

func TestBuildRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("99.95")
	in := Payment{QRID: "QR-9", WalletNumber: "W-1", Currency: "EUR", Amount: &amount, Description: "a&b = c"}

	uri, err := Build(in)
	require.NoError(t, err)
	assert.Equal(t, "payflow://payment?qr_id=QR-9&wallet=W-1&currency=EUR&amount=99.95&description=a%26b+%3D+c", uri)

	out, err := Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, in.QRID, out.QRID)
	assert.Equal(t, in.Description, out.Description)
	assert.True(t, amount.Equal(*out.Amount))
}

func TestBuild_RequiresQRID(t *testing.T) {
	_, err := Build(Payment{WalletNumber: "W-1"})
	assert.ErrorIs(t, err, ErrMissingQRID)
}

func TestBuild_RejectsPathLikeQRID(t *testing.T) {
	_, err := Build(Payment{QRID: "../wallets/withdraw"})
	assert.ErrorIs(t, err, ErrInvalidQRID)
}

func TestCheckID(t *testing.T) {
	assert.NoError(t, CheckID("QR-abc.123"))
	assert.ErrorIs(t, CheckID(""), ErrMissingQRID)
	assert.ErrorIs(t, CheckID("a/b"), ErrInvalidQRID)
}
