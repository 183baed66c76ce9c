package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/R3E-Network/payflow/internal/domain"
	"github.com/R3E-Network/payflow/internal/store"
)

func init() {
	register(
		command{name: "requests", summary: "List incoming, outgoing or pending money requests", run: runRequests},
		command{name: "request", summary: "Ask someone for money", run: runRequestCreate},
		command{name: "request-accept", summary: "Accept an incoming request from a wallet", run: runRequestAccept},
		command{name: "request-pay", summary: "Pay an incoming request with a payment method", run: runRequestPay},
		command{name: "request-reject", summary: "Reject an incoming request", run: runRequestReject},
		command{name: "request-cancel", summary: "Cancel an outgoing request", run: runRequestCancel},
	)
}

func runRequests(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "requests", "[--dir incoming|outgoing|pending] [--status All|Pending|Completed|Rejected|Expired]")
	dir := fs.String("dir", "incoming", "which requests to list")
	status := fs.String("status", string(store.FilterAll), "status filter")
	if err := parse(fs, args); err != nil {
		return err
	}

	s := e.app.Requests
	var list func() []domain.MoneyRequest
	var err error
	switch strings.ToLower(*dir) {
	case "incoming", "received":
		err = s.LoadIncoming(ctx)
		list = func() []domain.MoneyRequest { return s.Snapshot().Data.Incoming }
	case "outgoing", "sent":
		err = s.LoadOutgoing(ctx)
		list = func() []domain.MoneyRequest { return s.Snapshot().Data.Outgoing }
	case "pending":
		err = s.LoadPending(ctx)
		list = func() []domain.MoneyRequest { return s.Snapshot().Data.Pending }
	default:
		return fmt.Errorf("invalid --dir %q", *dir)
	}
	if err != nil {
		return err
	}

	reqs := store.FilterRequests(list(), statusFilter(*status))
	if len(reqs) == 0 {
		e.out.Info("No money requests")
		return nil
	}
	rows := make([][]string, 0, len(reqs))
	for _, r := range reqs {
		who := r.RequesterName
		if strings.EqualFold(*dir, "outgoing") || strings.EqualFold(*dir, "sent") {
			who = r.RequesteeName
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10), r.RequestNumber, who, store.FormatAmount(r.Amount), r.Status.String(), r.Description,
		})
	}
	e.out.Table([]string{"ID", "NUMBER", "WHO", "AMOUNT", "STATUS", "DESCRIPTION"}, rows)
	return nil
}

// statusFilter matches the filter name case-insensitively.
func statusFilter(raw string) store.StatusFilter {
	for _, f := range []store.StatusFilter{store.FilterAll, store.FilterPending, store.FilterCompleted, store.FilterRejected, store.FilterExpired} {
		if strings.EqualFold(raw, string(f)) {
			return f
		}
	}
	return store.FilterAll
}

func runRequestCreate(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "request", "--to EMAIL --amount AMOUNT [--description TEXT] [--wallet NUMBER]")
	to := fs.String("to", "", "email of the person to ask")
	rawAmount := fs.String("amount", "", "amount to request")
	description := fs.String("description", "", "what it is for")
	wallet := fs.String("wallet", "", "wallet to receive into (default: primary wallet)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *to == "" {
		return errors.New("--to is required")
	}
	amount, err := parseAmount(*rawAmount)
	if err != nil {
		return err
	}
	if *wallet == "" {
		w, err := primaryWallet(ctx, e)
		if err != nil {
			return err
		}
		*wallet = w.WalletNumber
	}

	r, err := e.app.Requests.Create(ctx, domain.CreateMoneyRequest{
		RequesteeEmail: *to,
		WalletNumber:   *wallet,
		Amount:         amount,
		Description:    *description,
	})
	if err != nil {
		return err
	}
	e.out.Field("Request", r.RequestNumber)
	return nil
}

func runRequestAccept(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "request-accept", "--id ID [--wallet-id WALLET_ID]")
	id := fs.Int64("id", 0, "money request id")
	walletID := fs.Int64("wallet-id", 0, "wallet to pay from (default: primary wallet)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	if *walletID == 0 {
		w, err := primaryWallet(ctx, e)
		if err != nil {
			return err
		}
		*walletID = w.ID
	}
	if _, err := e.app.Requests.Accept(ctx, *id, *walletID); err != nil {
		return err
	}
	e.out.Field("Balance", store.FormatAmount(e.app.Wallet.Balance()))
	return nil
}

func runRequestPay(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "request-pay", "--id ID --method PAYMENT_METHOD_ID")
	id := fs.Int64("id", 0, "money request id")
	method := fs.Int64("method", 0, "payment method id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	if err := requireID("method", *method); err != nil {
		return err
	}
	_, err := e.app.Requests.Pay(ctx, *id, *method)
	return err
}

func runRequestReject(ctx context.Context, e *env, args []string) error {
	return runRequestByID(ctx, e, "request-reject", args, e.app.Requests.Reject)
}

func runRequestCancel(ctx context.Context, e *env, args []string) error {
	return runRequestByID(ctx, e, "request-cancel", args, e.app.Requests.Cancel)
}

func runRequestByID(ctx context.Context, e *env, name string, args []string, fn func(context.Context, int64) error) error {
	fs := newFlags(e, name, "--id ID")
	id := fs.Int64("id", 0, "money request id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	return fn(ctx, *id)
}
