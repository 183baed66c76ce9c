package store

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/payflow/internal/domain"
	"github.com/R3E-Network/payflow/internal/state"
)

// ExchangeRateData is the state owned by ExchangeRateStore.
type ExchangeRateData struct {
	Rates []domain.ExchangeRate
	// Selected is the last pair fetched with LoadRate.
	Selected *domain.ExchangeRate
}

// ExchangeRateStore reads the public exchange rate endpoints. They need no
// session.
type ExchangeRateStore struct {
	base
	state *state.Container[ExchangeRateData]
}

func NewExchangeRateStore(deps Deps) *ExchangeRateStore {
	return &ExchangeRateStore{
		base:  newBase("exchange_rates", deps),
		state: state.New(ExchangeRateData{}),
	}
}

func (s *ExchangeRateStore) Snapshot() state.Snapshot[ExchangeRateData] { return s.state.Snapshot() }

// LoadRates fetches every published pair.
func (s *ExchangeRateStore) LoadRates(ctx context.Context) error {
	return load(ctx, s.base, s.state, "load exchange rates",
		getJSON[[]domain.ExchangeRate](s.Gateway, "public/exchange-rates", nil),
		func(d *ExchangeRateData, rates []domain.ExchangeRate) { d.Rates = rates })
}

// LoadRate fetches one pair.
func (s *ExchangeRateStore) LoadRate(ctx context.Context, from, to string) (domain.ExchangeRate, error) {
	path := "public/exchange-rates/" + url.PathEscape(strings.ToUpper(from)) + "/" + url.PathEscape(strings.ToUpper(to))
	var rate domain.ExchangeRate
	err := load(ctx, s.base, s.state, "load exchange rate",
		getJSON[domain.ExchangeRate](s.Gateway, path, nil),
		func(d *ExchangeRateData, r domain.ExchangeRate) {
			d.Selected = &r
			rate = r
		})
	return rate, err
}

// Convert asks the backend to convert amount between currencies.
func (s *ExchangeRateStore) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	query := url.Values{
		"amount": {amount.String()},
		"from":   {strings.ToUpper(from)},
		"to":     {strings.ToUpper(to)},
	}
	return process(ctx, s.base, s.state, "convert currency",
		getJSON[decimal.Decimal](s.Gateway, "public/exchange-rates/convert", query), nil, "")
}

func (s *ExchangeRateStore) ClearError() { clearError(s.state) }

// Reset returns the store to its initial state.
func (s *ExchangeRateStore) Reset() { s.state.Reset() }
