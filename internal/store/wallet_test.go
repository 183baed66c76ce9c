package store

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/payflow/internal/domain"
	apperrors "github.com/R3E-Network/payflow/internal/errors"
	"github.com/R3E-Network/payflow/internal/state"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWalletStore_LoadWallet(t *testing.T) {
	f := newFixture(t)
	f.backend.json("GET", "wallets/primary", http.StatusOK,
		map[string]any{"id": 7, "currency": "USD", "balance": 120.5, "walletNumber": "W-7"})
	s := NewWalletStore(f.deps)

	assert.Equal(t, state.NotLoaded, s.Snapshot().Status())
	require.NoError(t, s.LoadWallet(context.Background()))

	snap := s.Snapshot()
	require.NotNil(t, snap.Data.Wallet)
	assert.Equal(t, "W-7", snap.Data.Wallet.WalletNumber)
	assert.True(t, dec("120.5").Equal(s.Balance()))
	assert.False(t, snap.IsLoading)
	assert.Equal(t, state.Loaded, snap.Status())
	assert.Empty(t, f.notifier.Errors())
}

func TestWalletStore_AddMoneyReloadsOnce(t *testing.T) {
	f := newFixture(t)
	var (
		balance   atomic.Value
		gets      int32
		reloading = make(chan struct{})
		release   = make(chan struct{})
		once      sync.Once
	)
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)
	balance.Store("100")
	f.backend.handle("GET", "wallets/primary", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&gets, 1) == 2 {
			close(reloading)
			<-release
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "currency": "USD", "balance": balance.Load(), "walletNumber": "W-1"})
	})
	f.backend.handle("POST", "wallets/deposit", func(w http.ResponseWriter, _ *http.Request) {
		balance.Store("150")
		writeJSON(w, http.StatusOK, map[string]any{"id": 99, "type": "DEPOSIT"})
	})
	s := NewWalletStore(f.deps)
	ctx := context.Background()
	require.NoError(t, s.LoadWallet(ctx))

	done := make(chan error, 1)
	go func() { done <- s.AddMoney(ctx, dec("50"), 3) }()

	select {
	case <-reloading:
	case <-time.After(5 * time.Second):
		t.Fatal("wallet was not reloaded after deposit")
	}
	// The balance is never adjusted locally; it changes only with the reload.
	assert.True(t, dec("100").Equal(s.Balance()))
	unblock()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("AddMoney did not return")
	}

	assert.Equal(t, 1, f.backend.count("POST", "wallets/deposit"))
	assert.Equal(t, 2, f.backend.count("GET", "wallets/primary"))
	assert.JSONEq(t, `{"amount":50,"paymentMethodId":3}`, f.backend.lastBody("POST", "wallets/deposit"))
	assert.Equal(t, []string{"$50.00 added to your wallet"}, f.notifier.Successes())
	assert.True(t, dec("150").Equal(s.Balance()))
	assert.False(t, s.Snapshot().IsProcessing)
}

func TestWalletStore_BalanceMutations(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		run     func(s *WalletStore) error
		message string
	}{
		{
			name:    "withdraw",
			path:    "wallets/withdraw",
			run:     func(s *WalletStore) error { return s.Withdraw(context.Background(), dec("20"), 2) },
			message: "$20.00 withdrawn from your wallet",
		},
		{
			name:    "top up",
			path:    "wallets/topup",
			run:     func(s *WalletStore) error { return s.TopUp(context.Background(), "W-1", dec("5.5")) },
			message: "$5.50 added to your wallet",
		},
		{
			name: "transfer",
			path: "transactions/transfer",
			run: func(s *WalletStore) error {
				return s.Transfer(context.Background(), domain.TransferRequest{
					SourceWalletID: 1, DestinationWalletNumber: "W-2", Amount: dec("12"),
				})
			},
			message: "$12.00 transferred successfully",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.backend.json("GET", "wallets/primary", http.StatusOK, map[string]any{"id": 1, "balance": "1"})
			f.backend.json("POST", tt.path, http.StatusOK, map[string]any{})
			s := NewWalletStore(f.deps)

			require.NoError(t, tt.run(s))
			assert.Equal(t, 1, f.backend.count("POST", tt.path))
			assert.Equal(t, 1, f.backend.count("GET", "wallets/primary"))
			assert.Equal(t, []string{tt.message}, f.notifier.Successes())
			assert.Equal(t, []string{"POST " + tt.path, "GET wallets/primary"}, f.backend.calls())
		})
	}
}

func TestWalletStore_MutationFailureKeepsData(t *testing.T) {
	f := newFixture(t)
	f.backend.json("GET", "wallets/primary", http.StatusOK, map[string]any{"id": 1, "balance": "80"})
	f.backend.json("POST", "wallets/withdraw", http.StatusBadRequest, map[string]any{"message": "Insufficient funds"})
	s := NewWalletStore(f.deps)
	ctx := context.Background()
	require.NoError(t, s.LoadWallet(ctx))

	err := s.Withdraw(ctx, dec("100"), 1)
	var details *apperrors.Details
	require.ErrorAs(t, err, &details)
	assert.Equal(t, apperrors.CategoryClient, details.Category)
	assert.Equal(t, "Insufficient funds", details.Message)
	assert.Equal(t, "withdraw", details.Op)

	snap := s.Snapshot()
	assert.True(t, dec("80").Equal(snap.Data.Wallet.Balance))
	assert.Equal(t, "Insufficient funds", snap.Err.Message)
	assert.False(t, snap.IsProcessing)
	assert.Equal(t, state.LoadedWithError, snap.Status())
	assert.Equal(t, 1, f.backend.count("GET", "wallets/primary"))
	require.Len(t, f.notifier.Errors(), 1)
	assert.Empty(t, f.notifier.Successes())

	s.ClearError()
	assert.Nil(t, s.Snapshot().Err)
	assert.NotNil(t, s.Snapshot().Data.Wallet)
}

func TestWalletStore_ReloadFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.backend.json("POST", "wallets/deposit", http.StatusOK, map[string]any{})
	f.backend.json("GET", "wallets/primary", http.StatusServiceUnavailable, nil)
	s := NewWalletStore(f.deps)

	require.NoError(t, s.AddMoney(context.Background(), dec("10"), 1))

	snap := s.Snapshot()
	require.NotNil(t, snap.Err)
	assert.Equal(t, apperrors.CategoryServer, snap.Err.Category)
	assert.Equal(t, "load wallet", snap.Err.Op)
	assert.Equal(t, []string{"$10.00 added to your wallet"}, f.notifier.Successes())
}

func TestWalletStore_LoadFailureOffline(t *testing.T) {
	f := newFixture(t)
	f.backend.server.Close()
	s := NewWalletStore(f.deps)

	err := s.LoadWallet(context.Background())
	var details *apperrors.Details
	require.ErrorAs(t, err, &details)
	assert.Equal(t, apperrors.CategoryNetwork, details.Category)
	assert.False(t, s.Snapshot().IsLoading)
	assert.Nil(t, s.Snapshot().Data.Wallet)
}

func TestWalletStore_PaymentMethods(t *testing.T) {
	f := newFixture(t)
	f.backend.json("GET", "payment-methods", http.StatusOK, []map[string]any{
		{"id": 1, "type": "CARD", "provider": "Visa", "accountNumber": "4111111111111111"},
		{"id": 2, "type": "BANK_ACCOUNT", "provider": "ACME"},
	})
	f.backend.json("POST", "payment-methods", http.StatusCreated,
		map[string]any{"id": 3, "type": "PAYPAL", "provider": "PayPal"})
	f.backend.handle("DELETE", "payment-methods/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	s := NewWalletStore(f.deps)
	ctx := context.Background()

	require.NoError(t, s.LoadPaymentMethods(ctx))
	require.Len(t, s.Snapshot().Data.PaymentMethods, 2)
	assert.Equal(t, "1111", s.Snapshot().Data.PaymentMethods[0].LastFour())

	added, err := s.AddPaymentMethod(ctx, domain.CreatePaymentMethodRequest{Type: domain.PaymentMethodPayPal, Provider: "PayPal"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), added.ID)
	require.Len(t, s.Snapshot().Data.PaymentMethods, 3)

	require.NoError(t, s.RemovePaymentMethod(ctx, 1))
	methods := s.Snapshot().Data.PaymentMethods
	require.Len(t, methods, 2)
	assert.Equal(t, int64(2), methods[0].ID)
	assert.Equal(t, int64(3), methods[1].ID)
	assert.Equal(t, []string{"Payment method added successfully", "Payment method removed"}, f.notifier.Successes())
}

func TestWalletStore_CreateAndReset(t *testing.T) {
	f := newFixture(t)
	f.backend.handle("POST", "wallets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"id": 5, "currency": "EUR", "balance": 0, "walletNumber": "W-5"})
	})
	s := NewWalletStore(f.deps)

	w, err := s.CreateWallet(context.Background(), "EUR")
	require.NoError(t, err)
	assert.Equal(t, "EUR", w.Currency)
	assert.JSONEq(t, `{"currency":"EUR"}`, f.backend.lastBody("POST", "wallets"))
	assert.Equal(t, []string{"Wallet created successfully"}, f.notifier.Successes())

	s.Reset()
	assert.Nil(t, s.Snapshot().Data.Wallet)
	assert.True(t, s.Balance().IsZero())
}

func TestWalletStore_Subscribe(t *testing.T) {
	f := newFixture(t)
	f.backend.json("GET", "wallets/primary", http.StatusOK, map[string]any{"id": 1, "balance": "3"})
	s := NewWalletStore(f.deps)
	ch, cancel := s.Subscribe(8)
	defer cancel()

	require.NoError(t, s.LoadWallet(context.Background()))

	first := <-ch
	assert.True(t, first.IsLoading)
	second := <-ch
	assert.False(t, second.IsLoading)
	require.NotNil(t, second.Data.Wallet)
	assert.Greater(t, second.Version, first.Version)
}
