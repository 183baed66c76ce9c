package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/payflow/internal/domain"
	"github.com/R3E-Network/payflow/internal/store"
)

func init() {
	register(
		command{name: "tx", summary: "List, filter or export transactions", run: runTransactions},
		command{name: "tx-show", summary: "Show one transaction", run: runTransactionShow},
		command{name: "tx-search", summary: "Search transactions by date range", run: runTransactionSearch},
		command{name: "receipt", summary: "Download a transaction receipt", run: runReceipt},
	)
}

func runTransactions(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "tx", "[--page N --size N | --all | --recent N] [filters] [--csv FILE] [--archive]")
	page := fs.Int("page", 0, "page number, starting at 0")
	size := fs.Int("size", store.DefaultPageSize, "page size")
	all := fs.Bool("all", false, "load every transaction")
	recent := fs.Int("recent", 0, "show only the N most recent transactions")
	var f store.Filter
	fs.StringVar(&f.Search, "search", "", "match description, type or amount")
	txType := fs.String("type", "", "DEPOSIT, WITHDRAWAL, TRANSFER, PAYMENT, ...")
	txStatus := fs.String("status", "", "PENDING, COMPLETED, FAILED or CANCELLED")
	fs.StringVar(&f.DateRange, "range", "", "last N days, or all")
	csvPath := fs.String("csv", "", "write the result as CSV to FILE (- for stdout, auto for a dated name)")
	archive := fs.Bool("archive", false, "also archive the full history to PostgreSQL")
	if err := parse(fs, args); err != nil {
		return err
	}
	f.Type = domain.TransactionType(strings.ToUpper(*txType))
	f.Status = domain.TransactionStatus(strings.ToUpper(*txStatus))

	txs := e.app.Transactions
	var err error
	switch {
	case *recent > 0:
		if err = txs.LoadRecent(ctx, *recent); err == nil {
			return printTransactions(e, txs.Snapshot().Data.Recent)
		}
	case *all || *csvPath != "" || f != (store.Filter{}):
		err = txs.LoadAllTransactions(ctx)
	default:
		err = txs.LoadTransactions(ctx, *page, *size)
	}
	if err != nil {
		return err
	}

	data := txs.Snapshot().Data
	filtered, err := store.FilterTransactions(data.Transactions, f, e.app.Clock.Now())
	if err != nil {
		return err
	}

	if *csvPath != "" {
		if err := exportCSV(e, *csvPath, filtered); err != nil {
			return err
		}
	} else {
		if err := printTransactions(e, filtered); err != nil {
			return err
		}
		if data.TotalPages > 1 && !*all && f == (store.Filter{}) {
			e.out.Info(fmt.Sprintf("Page %d of %d (%d transactions)", data.CurrentPage+1, data.TotalPages, data.TotalElements))
		}
	}

	if *archive {
		n, err := e.app.ArchiveTransactions(ctx)
		if err != nil {
			return err
		}
		e.out.Success(fmt.Sprintf("%d transactions archived", n))
	}
	return nil
}

func exportCSV(e *env, path string, txs []domain.Transaction) error {
	var w io.Writer = e.out.Out()
	if path != "-" {
		if path == "auto" {
			path = store.ExportFilename(e.app.Clock.Now())
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := store.ExportCSV(w, txs, time.Local); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	if path != "-" {
		e.out.Success(fmt.Sprintf("Exported %d transactions to %s", len(txs), path))
	}
	return nil
}

func printTransactions(e *env, txs []domain.Transaction) error {
	if len(txs) == 0 {
		e.out.Info("No transactions")
		return nil
	}
	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, []string{
			strconv.FormatInt(tx.ID, 10),
			occurred(tx),
			tx.Type.String(),
			store.FormatAmount(tx.Amount),
			tx.Status.String(),
			tx.Description,
		})
	}
	e.out.Table([]string{"ID", "DATE", "TYPE", "AMOUNT", "STATUS", "DESCRIPTION"}, rows)
	return nil
}

func occurred(tx domain.Transaction) string {
	at, ok := tx.OccurredAt()
	if !ok {
		return "-"
	}
	return at.Local().Format("2006-01-02 15:04")
}

func runTransactionShow(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "tx-show", "--id ID")
	id := fs.Int64("id", 0, "transaction id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	if err := e.app.Transactions.LoadTransactionByID(ctx, *id); err != nil {
		return err
	}
	tx := e.app.Transactions.Snapshot().Data.Current
	if tx == nil {
		return errors.New("transaction not found")
	}

	e.out.Field("Transaction", tx.TransactionNumber)
	e.out.Field("Date", occurred(*tx))
	e.out.Field("Type", tx.Type)
	e.out.Field("Status", tx.Status)
	e.out.Field("Amount", store.FormatAmount(tx.Amount))
	if tx.Description != "" {
		e.out.Field("Description", tx.Description)
	}
	if tx.SenderName != "" {
		e.out.Field("From", tx.SenderName)
	}
	if tx.ReceiverName != "" {
		e.out.Field("To", tx.ReceiverName)
	}
	if tx.ExchangeRate != nil {
		e.out.Field("Exchange rate", fmt.Sprintf("%s %s→%s", tx.ExchangeRate, tx.SourceCurrency, tx.DestinationCurrency))
	}
	return nil
}

func runTransactionSearch(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "tx-search", "--from YYYY-MM-DD --to YYYY-MM-DD")
	from := fs.String("from", "", "first day, inclusive")
	to := fs.String("to", "", "last day, inclusive")
	if err := parse(fs, args); err != nil {
		return err
	}
	start, err := time.Parse(time.DateOnly, *from)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	end, err := time.Parse(time.DateOnly, *to)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}
	if end.Before(start) {
		return errors.New("--to is before --from")
	}
	if err := e.app.Transactions.SearchTransactions(ctx, start, end); err != nil {
		return err
	}
	return printTransactions(e, e.app.Transactions.Snapshot().Data.Transactions)
}

func runReceipt(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "receipt", "--id ID [--out FILE]")
	id := fs.Int64("id", 0, "transaction id")
	out := fs.String("out", "", "output file (default receipt-ID.pdf, - for stdout)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	pdf, err := e.app.Transactions.DownloadReceipt(ctx, *id)
	if err != nil {
		return err
	}
	if *out == "-" {
		_, err := e.out.Out().Write(pdf)
		return err
	}
	if *out == "" {
		*out = fmt.Sprintf("receipt-%d.pdf", *id)
	}
	if err := os.WriteFile(*out, pdf, 0o644); err != nil {
		return err
	}
	e.out.Info("Saved " + *out)
	return nil
}
