package store

import (
	"context"

	"github.com/R3E-Network/payflow/internal/domain"
	"github.com/R3E-Network/payflow/internal/state"
)

// MoneyRequestData is the state owned by MoneyRequestStore.
type MoneyRequestData struct {
	Incoming []domain.MoneyRequest
	Outgoing []domain.MoneyRequest
	Pending  []domain.MoneyRequest
}

// MoneyRequestStore holds the requests the user received and sent. Status
// transitions happen on the backend; the store only drops resolved requests
// from its lists.
type MoneyRequestStore struct {
	base
	state *state.Container[MoneyRequestData]

	// AfterPayment, when set, runs after Accept and Pay succeed.
	AfterPayment AfterPaymentFunc
}

// NewMoneyRequestStore creates an empty money request store.
func NewMoneyRequestStore(deps Deps) *MoneyRequestStore {
	return &MoneyRequestStore{
		base:  newBase("money_requests", deps),
		state: state.New(MoneyRequestData{}),
	}
}

func (s *MoneyRequestStore) Snapshot() state.Snapshot[MoneyRequestData] { return s.state.Snapshot() }

func (s *MoneyRequestStore) Subscribe(buf int) (<-chan state.Snapshot[MoneyRequestData], func()) {
	return s.state.Subscribe(buf)
}

// LoadIncoming fetches requests addressed to the user.
func (s *MoneyRequestStore) LoadIncoming(ctx context.Context) error {
	return load(ctx, s.base, s.state, "load incoming requests",
		getJSON[[]domain.MoneyRequest](s.Gateway, "money-requests/received", nil),
		func(d *MoneyRequestData, reqs []domain.MoneyRequest) { d.Incoming = reqs })
}

// LoadOutgoing fetches requests the user sent.
func (s *MoneyRequestStore) LoadOutgoing(ctx context.Context) error {
	return load(ctx, s.base, s.state, "load outgoing requests",
		getJSON[[]domain.MoneyRequest](s.Gateway, "money-requests/sent", nil),
		func(d *MoneyRequestData, reqs []domain.MoneyRequest) { d.Outgoing = reqs })
}

// LoadPending fetches the requests still awaiting an answer.
func (s *MoneyRequestStore) LoadPending(ctx context.Context) error {
	return load(ctx, s.base, s.state, "load pending requests",
		getJSON[[]domain.MoneyRequest](s.Gateway, "money-requests/pending", nil),
		func(d *MoneyRequestData, reqs []domain.MoneyRequest) { d.Pending = reqs })
}

// Create sends a new request and appends it to the outgoing list.
func (s *MoneyRequestStore) Create(ctx context.Context, req domain.CreateMoneyRequest) (domain.MoneyRequest, error) {
	return process(ctx, s.base, s.state, "create money request",
		postJSON[domain.MoneyRequest](s.Gateway, "money-requests", req),
		func(d *MoneyRequestData, created domain.MoneyRequest) { d.Outgoing = appended(d.Outgoing, created) },
		"Money request created successfully")
}

// Accept pays an incoming request from one of the user's wallets.
func (s *MoneyRequestStore) Accept(ctx context.Context, id, sourceWalletID int64) (domain.Transaction, error) {
	tx, err := process(ctx, s.base, s.state, "accept money request",
		postJSON[domain.Transaction](s.Gateway, idPath("money-requests", id, "accept"),
			domain.AcceptMoneyRequest{SourceWalletID: sourceWalletID}),
		func(d *MoneyRequestData, _ domain.Transaction) { d.Incoming = withoutRequest(d.Incoming, id) },
		"Money request accepted successfully")
	if err != nil {
		return tx, err
	}
	s.afterPayment(ctx)
	return tx, nil
}

// Pay settles an incoming request from a payment method.
func (s *MoneyRequestStore) Pay(ctx context.Context, id, paymentMethodID int64) (domain.Transaction, error) {
	tx, err := process(ctx, s.base, s.state, "pay money request",
		postJSON[domain.Transaction](s.Gateway, idPath("money-requests", id, "pay"),
			domain.PayMoneyRequest{PaymentMethodID: paymentMethodID}),
		func(d *MoneyRequestData, _ domain.Transaction) { d.Incoming = withoutRequest(d.Incoming, id) },
		"Payment sent successfully")
	if err != nil {
		return tx, err
	}
	s.afterPayment(ctx)
	return tx, nil
}

// Reject declines an incoming request.
func (s *MoneyRequestStore) Reject(ctx context.Context, id int64) error {
	_, err := process(ctx, s.base, s.state, "reject money request",
		postJSON[domain.MoneyRequest](s.Gateway, idPath("money-requests", id, "reject"), nil),
		func(d *MoneyRequestData, _ domain.MoneyRequest) { d.Incoming = withoutRequest(d.Incoming, id) },
		"Money request rejected")
	return err
}

// Cancel withdraws an outgoing request.
func (s *MoneyRequestStore) Cancel(ctx context.Context, id int64) error {
	_, err := process(ctx, s.base, s.state, "cancel money request",
		postJSON[domain.MoneyRequest](s.Gateway, idPath("money-requests", id, "cancel"), nil),
		func(d *MoneyRequestData, _ domain.MoneyRequest) { d.Outgoing = withoutRequest(d.Outgoing, id) },
		"Money request cancelled")
	return err
}

func (s *MoneyRequestStore) afterPayment(ctx context.Context) {
	if s.AfterPayment == nil {
		return
	}
	if err := s.AfterPayment(ctx); err != nil {
		s.Logger.WithContext(ctx).WithError(err).Warn("reload after payment failed")
	}
}

func (s *MoneyRequestStore) ClearError() { clearError(s.state) }

// Reset returns the store to its initial state.
func (s *MoneyRequestStore) Reset() { s.state.Reset() }

func withoutRequest(reqs []domain.MoneyRequest, id int64) []domain.MoneyRequest {
	return without(reqs, func(r domain.MoneyRequest) bool { return r.ID == id })
}
