// Package archive copies loaded transactions into PostgreSQL so history
// survives backend retention windows.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/payflow/internal/clock"
	"github.com/R3E-Network/payflow/internal/domain"
	"github.com/R3E-Network/payflow/internal/metrics"
)

// DefaultTable is used when Options.Table is empty.
const DefaultTable = "payflow_transactions"

// ErrNoDSN is returned by Open without a connection string.
var ErrNoDSN = errors.New("archive: dsn is required")

// Row is one archived transaction.
type Row struct {
	ID                int64           `db:"id"`
	TransactionNumber string          `db:"transaction_number"`
	Type              string          `db:"type"`
	Status            string          `db:"status"`
	Amount            decimal.Decimal `db:"amount"`
	Description       string          `db:"description"`
	SenderName        string          `db:"sender_name"`
	ReceiverName      string          `db:"receiver_name"`
	OccurredAt        sql.NullTime    `db:"occurred_at"`
	ArchivedAt        time.Time       `db:"archived_at"`
}

// Options configures an Archive.
type Options struct {
	Table string
	Clock clock.Clock
}

// Archive persists transactions keyed by their backend id.
type Archive struct {
	db    *sqlx.DB
	table string
	clock clock.Clock
}

// Open connects to PostgreSQL.
func Open(ctx context.Context, dsn string, opts Options) (*Archive, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: connect: %w", err)
	}
	return New(db, opts), nil
}

// New wraps an open handle. The handle must use the postgres bind style.
func New(db *sqlx.DB, opts Options) *Archive {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Archive{db: db, table: pq.QuoteIdentifier(opts.Table), clock: opts.Clock}
}

// Close releases the connection pool.
func (a *Archive) Close() error { return a.db.Close() }

// EnsureSchema creates the archive table and its index when missing.
func (a *Archive) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGINT PRIMARY KEY,
	transaction_number TEXT NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	amount NUMERIC(20, 8) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	sender_name TEXT NOT NULL DEFAULT '',
	receiver_name TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ,
	archived_at TIMESTAMPTZ NOT NULL
)`, a.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (occurred_at DESC)`,
			pq.QuoteIdentifier(unquoted(a.table)+"_occurred_at_idx"), a.table),
	}
	for _, stmt := range stmts {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			metrics.RecordStoreOperation("archive", "ensure schema", err)
			return fmt.Errorf("archive: ensure schema: %w", err)
		}
	}
	return nil
}

// SaveTransactions upserts txs in one database transaction and returns how
// many rows were written. Transactions without a backend id are skipped.
func (a *Archive) SaveTransactions(ctx context.Context, txs []domain.Transaction) (n int, err error) {
	defer func() { metrics.RecordStoreOperation("archive", "save", err) }()

	rows := make([]Row, 0, len(txs))
	now := a.clock.Now().UTC()
	for _, tx := range txs {
		if tx.ID == 0 {
			continue
		}
		rows = append(rows, toRow(tx, now))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	dbtx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("archive: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = dbtx.Rollback()
		}
	}()

	query := fmt.Sprintf(`INSERT INTO %s
	(id, transaction_number, type, status, amount, description, sender_name, receiver_name, occurred_at, archived_at)
VALUES
	(:id, :transaction_number, :type, :status, :amount, :description, :sender_name, :receiver_name, :occurred_at, :archived_at)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	description = EXCLUDED.description,
	archived_at = EXCLUDED.archived_at`, a.table)

	for _, row := range rows {
		if _, err = dbtx.NamedExecContext(ctx, query, row); err != nil {
			return 0, fmt.Errorf("archive: save transaction %d: %w", row.ID, err)
		}
	}
	if err = dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("archive: commit: %w", err)
	}
	return len(rows), nil
}

// Recent returns the newest archived transactions, undated ones last.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT id, transaction_number, type, status, amount, description,
	sender_name, receiver_name, occurred_at, archived_at
FROM %s ORDER BY occurred_at DESC NULLS LAST, id DESC LIMIT $1`, a.table)

	var rows []Row
	if err := a.db.SelectContext(ctx, &rows, query, limit); err != nil {
		metrics.RecordStoreOperation("archive", "recent", err)
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	metrics.RecordStoreOperation("archive", "recent", nil)
	return rows, nil
}

func toRow(tx domain.Transaction, now time.Time) Row {
	row := Row{
		ID:                tx.ID,
		TransactionNumber: tx.TransactionNumber,
		Type:              string(tx.Type),
		Status:            string(tx.Status),
		Amount:            tx.Amount,
		Description:       tx.Description,
		SenderName:        tx.SenderName,
		ReceiverName:      tx.ReceiverName,
		ArchivedAt:        now,
	}
	if at, ok := tx.OccurredAt(); ok {
		row.OccurredAt = sql.NullTime{Time: at.UTC(), Valid: true}
	}
	return row
}

func unquoted(ident string) string {
	if len(ident) >= 2 && ident[0] == '"' && ident[len(ident)-1] == '"' {
		return ident[1 : len(ident)-1]
	}
	return ident
}
