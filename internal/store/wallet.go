package store

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/payflow/internal/domain"
	"github.com/R3E-Network/payflow/internal/state"
)

// WalletData is the state owned by WalletStore.
type WalletData struct {
	Wallet         *domain.Wallet
	PaymentMethods []domain.PaymentMethod
}

// WalletStore holds the primary wallet and the registered payment methods.
// The balance is only ever taken from the backend; every balance-moving
// mutation is followed by exactly one reload.
type WalletStore struct {
	base
	state *state.Container[WalletData]
}

// NewWalletStore creates an empty wallet store.
func NewWalletStore(deps Deps) *WalletStore {
	return &WalletStore{
		base:  newBase("wallet", deps),
		state: state.New(WalletData{}),
	}
}

// Snapshot returns the current state.
func (s *WalletStore) Snapshot() state.Snapshot[WalletData] { return s.state.Snapshot() }

// Subscribe streams state snapshots. Call cancel to stop.
func (s *WalletStore) Subscribe(buf int) (<-chan state.Snapshot[WalletData], func()) {
	return s.state.Subscribe(buf)
}

// Balance returns the last fetched balance, zero when no wallet is loaded.
func (s *WalletStore) Balance() decimal.Decimal {
	if w := s.state.Snapshot().Data.Wallet; w != nil {
		return w.Balance
	}
	return decimal.Zero
}

// LoadWallet fetches the primary wallet.
func (s *WalletStore) LoadWallet(ctx context.Context) error {
	return load(ctx, s.base, s.state, "load wallet",
		getJSON[domain.Wallet](s.Gateway, "wallets/primary", nil),
		func(d *WalletData, w domain.Wallet) { d.Wallet = &w })
}

// LoadWalletByID fetches a wallet by id and makes it the current wallet.
func (s *WalletStore) LoadWalletByID(ctx context.Context, id int64) error {
	return load(ctx, s.base, s.state, "load wallet",
		getJSON[domain.Wallet](s.Gateway, idPath("wallets", id), nil),
		func(d *WalletData, w domain.Wallet) { d.Wallet = &w })
}

// LoadPaymentMethods fetches the registered payment methods.
func (s *WalletStore) LoadPaymentMethods(ctx context.Context) error {
	return load(ctx, s.base, s.state, "load payment methods",
		getJSON[[]domain.PaymentMethod](s.Gateway, "payment-methods", nil),
		func(d *WalletData, methods []domain.PaymentMethod) { d.PaymentMethods = methods })
}

// CreateWallet opens a wallet in currency.
func (s *WalletStore) CreateWallet(ctx context.Context, currency string) (domain.Wallet, error) {
	return process(ctx, s.base, s.state, "create wallet",
		postJSON[domain.Wallet](s.Gateway, "wallets", domain.CreateWalletRequest{Currency: currency}),
		func(d *WalletData, w domain.Wallet) { d.Wallet = &w },
		"Wallet created successfully")
}

// AddMoney deposits amount from a payment method.
func (s *WalletStore) AddMoney(ctx context.Context, amount decimal.Decimal, paymentMethodID int64) error {
	return s.moveMoney(ctx, "add money", "wallets/deposit",
		domain.AmountRequest{Amount: amount, PaymentMethodID: paymentMethodID},
		FormatAmount(amount)+" added to your wallet")
}

// Withdraw moves amount out of the wallet to a payment method.
func (s *WalletStore) Withdraw(ctx context.Context, amount decimal.Decimal, paymentMethodID int64) error {
	return s.moveMoney(ctx, "withdraw", "wallets/withdraw",
		domain.AmountRequest{Amount: amount, PaymentMethodID: paymentMethodID},
		FormatAmount(amount)+" withdrawn from your wallet")
}

// TopUp credits the wallet identified by walletNumber.
func (s *WalletStore) TopUp(ctx context.Context, walletNumber string, amount decimal.Decimal) error {
	return s.moveMoney(ctx, "top up", "wallets/topup",
		domain.TopUpRequest{WalletNumber: walletNumber, Amount: amount},
		FormatAmount(amount)+" added to your wallet")
}

// Transfer sends money to another wallet.
func (s *WalletStore) Transfer(ctx context.Context, req domain.TransferRequest) error {
	return s.moveMoney(ctx, "transfer", "transactions/transfer", req,
		FormatAmount(req.Amount)+" transferred successfully")
}

// moveMoney posts a balance-moving request and then reloads the wallet once.
// The reload's own failure is recorded on the store but does not fail the
// mutation, which the backend already accepted.
func (s *WalletStore) moveMoney(ctx context.Context, op, path string, body any, success string) error {
	if _, err := process(ctx, s.base, s.state, op,
		postJSON[json.RawMessage](s.Gateway, path, body), nil, success); err != nil {
		return err
	}
	_ = s.LoadWallet(ctx)
	return nil
}

// AddPaymentMethod registers a funding source and appends it locally.
func (s *WalletStore) AddPaymentMethod(ctx context.Context, req domain.CreatePaymentMethodRequest) (domain.PaymentMethod, error) {
	return process(ctx, s.base, s.state, "add payment method",
		postJSON[domain.PaymentMethod](s.Gateway, "payment-methods", req),
		func(d *WalletData, m domain.PaymentMethod) { d.PaymentMethods = appended(d.PaymentMethods, m) },
		"Payment method added successfully")
}

// RemovePaymentMethod deletes a funding source and drops it locally.
func (s *WalletStore) RemovePaymentMethod(ctx context.Context, id int64) error {
	_, err := process(ctx, s.base, s.state, "remove payment method",
		deleteJSON[json.RawMessage](s.Gateway, idPath("payment-methods", id)),
		func(d *WalletData, _ json.RawMessage) {
			d.PaymentMethods = without(d.PaymentMethods, func(m domain.PaymentMethod) bool { return m.ID == id })
		},
		"Payment method removed")
	return err
}

// ClearError drops the recorded error.
func (s *WalletStore) ClearError() { clearError(s.state) }

// Reset returns the store to its initial state.
func (s *WalletStore) Reset() { s.state.Reset() }
