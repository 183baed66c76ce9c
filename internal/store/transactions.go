package store

import (
	"context"
	"net/url"
	"time"

	"github.com/R3E-Network/payflow/internal/domain"
	"github.com/R3E-Network/payflow/internal/state"
)

// DefaultPageSize is the page size used until a page is loaded.
const DefaultPageSize = 10

// TransactionData is the state owned by TransactionStore.
type TransactionData struct {
	Transactions  []domain.Transaction
	Recent        []domain.Transaction
	Current       *domain.Transaction
	TotalElements int64
	TotalPages    int
	CurrentPage   int
	PageSize      int
}

// TransactionStore holds the transaction history. Transactions are read-only
// on the client.
type TransactionStore struct {
	base
	state *state.Container[TransactionData]
}

// NewTransactionStore creates an empty transaction store.
func NewTransactionStore(deps Deps) *TransactionStore {
	return &TransactionStore{
		base:  newBase("transactions", deps),
		state: state.New(TransactionData{PageSize: DefaultPageSize}),
	}
}

func (s *TransactionStore) Snapshot() state.Snapshot[TransactionData] { return s.state.Snapshot() }

func (s *TransactionStore) Subscribe(buf int) (<-chan state.Snapshot[TransactionData], func()) {
	return s.state.Subscribe(buf)
}

// LoadTransactions fetches one page of history.
func (s *TransactionStore) LoadTransactions(ctx context.Context, page, size int) error {
	if size <= 0 {
		size = DefaultPageSize
	}
	query := url.Values{"page": {itoa(page)}, "size": {itoa(size)}}
	return load(ctx, s.base, s.state, "load transactions",
		getJSON[domain.Page[domain.Transaction]](s.Gateway, "transactions", query),
		func(d *TransactionData, p domain.Page[domain.Transaction]) {
			d.Transactions = p.Content
			d.TotalElements = p.TotalElements
			d.TotalPages = p.TotalPages
			d.CurrentPage = p.Number
			if p.Size > 0 {
				d.PageSize = p.Size
			} else {
				d.PageSize = size
			}
		})
}

// LoadAllTransactions fetches the history with the backend's default paging
// and keeps only the page content.
func (s *TransactionStore) LoadAllTransactions(ctx context.Context) error {
	return load(ctx, s.base, s.state, "load transactions",
		getJSON[domain.Page[domain.Transaction]](s.Gateway, "transactions", nil),
		func(d *TransactionData, p domain.Page[domain.Transaction]) {
			d.Transactions = p.Content
			d.TotalElements = p.TotalElements
			d.TotalPages = p.TotalPages
			d.CurrentPage = p.Number
		})
}

// LoadRecent fetches the latest limit transactions.
func (s *TransactionStore) LoadRecent(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = 5
	}
	return load(ctx, s.base, s.state, "load recent transactions",
		getJSON[[]domain.Transaction](s.Gateway, "transactions/recent", url.Values{"limit": {itoa(limit)}}),
		func(d *TransactionData, txs []domain.Transaction) { d.Recent = txs })
}

// LoadTransactionByID fetches one transaction, makes it current and swaps it
// into the loaded list.
func (s *TransactionStore) LoadTransactionByID(ctx context.Context, id int64) error {
	return load(ctx, s.base, s.state, "load transaction",
		getJSON[domain.Transaction](s.Gateway, idPath("transactions", id), nil),
		func(d *TransactionData, tx domain.Transaction) {
			d.Current = &tx
			d.Transactions = replaced(d.Transactions, tx, sameTransaction)
		})
}

// SearchTransactions replaces the list with transactions between start and
// end, both inclusive calendar days.
func (s *TransactionStore) SearchTransactions(ctx context.Context, start, end time.Time) error {
	query := url.Values{
		"startDate": {start.UTC().Format(time.DateOnly)},
		"endDate":   {end.UTC().Format(time.DateOnly)},
	}
	return load(ctx, s.base, s.state, "search transactions",
		getJSON[[]domain.Transaction](s.Gateway, "transactions/search", query),
		func(d *TransactionData, txs []domain.Transaction) {
			d.Transactions = txs
			d.TotalElements = int64(len(txs))
			d.TotalPages = 1
			d.CurrentPage = 0
		})
}

// DownloadReceipt returns the PDF receipt of a transaction.
func (s *TransactionStore) DownloadReceipt(ctx context.Context, id int64) ([]byte, error) {
	return process(ctx, s.base, s.state, "download receipt",
		func(ctx context.Context) ([]byte, error) {
			return s.Gateway.GetBinary(ctx, idPath("transactions", id, "receipt"))
		}, nil, "Receipt downloaded successfully")
}

func (s *TransactionStore) ClearError() { clearError(s.state) }

// Reset returns the store to its initial state.
func (s *TransactionStore) Reset() { s.state.Reset() }

func sameTransaction(a, b domain.Transaction) bool {
	if a.ID != 0 || b.ID != 0 {
		return a.ID == b.ID
	}
	return a.TransactionNumber == b.TransactionNumber
}
