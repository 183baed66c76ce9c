package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/payflow/internal/domain"
)

// DateRangeAll disables the date range filter.
const DateRangeAll = "all"

// Filter narrows a transaction list. Zero fields do not filter. DateRange is
// "all" or a number of days back from now.
type Filter struct {
	Search    string
	Type      domain.TransactionType
	Status    domain.TransactionStatus
	DateRange string
}

// FilterTransactions returns the transactions matching every criterion of f.
// Search is case-insensitive over description, type and amount. With a day
// range, transactions without a usable date are excluded.
func FilterTransactions(txs []domain.Transaction, f Filter, now time.Time) ([]domain.Transaction, error) {
	var cutoff time.Time
	if r := strings.TrimSpace(f.DateRange); r != "" && r != DateRangeAll {
		days, err := strconv.Atoi(r)
		if err != nil || days < 0 {
			return nil, fmt.Errorf("store: invalid date range %q", f.DateRange)
		}
		cutoff = now.AddDate(0, 0, -days)
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if search != "" && !matchesSearch(tx, search) {
			continue
		}
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if f.Status != "" && tx.Status != f.Status {
			continue
		}
		if !cutoff.IsZero() {
			at, ok := tx.OccurredAt()
			if !ok || at.Before(cutoff) {
				continue
			}
		}
		out = append(out, tx)
	}
	return out, nil
}

func matchesSearch(tx domain.Transaction, search string) bool {
	return strings.Contains(strings.ToLower(tx.Description), search) ||
		strings.Contains(strings.ToLower(string(tx.Type)), search) ||
		strings.Contains(tx.Amount.String(), search)
}

var csvHeader = []string{"Date", "Type", "Description", "Amount", "Status"}

// ExportCSV writes txs with a header row. Dates are rendered as YYYY-MM-DD
// in loc, empty when unknown.
func ExportCSV(w io.Writer, txs []domain.Transaction, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("store: write csv header: %w", err)
	}
	for _, tx := range txs {
		date := ""
		if at, ok := tx.OccurredAt(); ok {
			date = at.In(loc).Format(time.DateOnly)
		}
		row := []string{date, string(tx.Type), tx.Description, tx.Amount.String(), string(tx.Status)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("store: write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFilename is the default name of a CSV export made at now.
func ExportFilename(now time.Time) string {
	return "transactions-" + now.UTC().Format(time.DateOnly) + ".csv"
}

// StatusFilter selects money requests by status.
type StatusFilter string

const (
	FilterAll       StatusFilter = "All"
	FilterPending   StatusFilter = "Pending"
	FilterCompleted StatusFilter = "Completed"
	FilterRejected  StatusFilter = "Rejected"
	FilterExpired   StatusFilter = "Expired"
)

var requestFilterStatus = map[StatusFilter]domain.RequestStatus{
	FilterPending:   domain.RequestPending,
	FilterCompleted: domain.RequestCompleted,
	FilterRejected:  domain.RequestRejected,
	FilterExpired:   domain.RequestExpired,
}

// FilterRequests keeps the requests whose status matches f. All and unknown
// filters return reqs unmodified.
func FilterRequests(reqs []domain.MoneyRequest, f StatusFilter) []domain.MoneyRequest {
	status, ok := requestFilterStatus[f]
	if !ok {
		return reqs
	}
	return without(reqs, func(r domain.MoneyRequest) bool { return r.Status != status })
}
