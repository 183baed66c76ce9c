package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/payflow/internal/domain"
	"github.com/R3E-Network/payflow/internal/store"
)

func init() {
	register(
		command{name: "wallet", summary: "Show the primary wallet or one by id", run: runWallet},
		command{name: "wallet-create", summary: "Create a wallet", run: runWalletCreate},
		command{name: "deposit", summary: "Add money from a payment method", run: runDeposit},
		command{name: "withdraw", summary: "Withdraw money to a payment method", run: runWithdraw},
		command{name: "topup", summary: "Top up a wallet by number", run: runTopUp},
		command{name: "transfer", summary: "Send money to another wallet", run: runTransfer},
		command{name: "methods", summary: "List payment methods", run: runMethods},
		command{name: "method-add", summary: "Register a payment method", run: runMethodAdd},
		command{name: "method-rm", summary: "Remove a payment method", run: runMethodRemove},
	)
}

// parseAmount accepts a positive decimal, with or without a leading '$'.
func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "$")
	if raw == "" {
		return decimal.Decimal{}, errors.New("--amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", raw)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("amount must be positive, got %s", amount)
	}
	return amount, nil
}

func requireID(name string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

// primaryWallet returns the loaded primary wallet, loading it when needed.
func primaryWallet(ctx context.Context, e *env) (domain.Wallet, error) {
	if w := e.app.Wallet.Snapshot().Data.Wallet; w != nil {
		return *w, nil
	}
	if err := e.app.Wallet.LoadWallet(ctx); err != nil {
		return domain.Wallet{}, err
	}
	w := e.app.Wallet.Snapshot().Data.Wallet
	if w == nil {
		return domain.Wallet{}, errors.New("no primary wallet; create one with `payflow wallet-create`")
	}
	return *w, nil
}

func printWallet(e *env, w *domain.Wallet) {
	if w == nil {
		e.out.Info("No wallet")
		return
	}
	e.out.Field("Wallet", w.WalletNumber)
	e.out.Field("ID", w.ID)
	e.out.Field("Currency", w.Currency)
	e.out.Field("Balance", store.FormatAmount(w.Balance))
}

func runWallet(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "wallet", "[--id ID]")
	id := fs.Int64("id", 0, "wallet id (default: primary wallet)")
	if err := parse(fs, args); err != nil {
		return err
	}
	var err error
	if *id > 0 {
		err = e.app.Wallet.LoadWalletByID(ctx, *id)
	} else {
		err = e.app.Wallet.LoadWallet(ctx)
	}
	if err != nil {
		return err
	}
	printWallet(e, e.app.Wallet.Snapshot().Data.Wallet)
	return nil
}

func runWalletCreate(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "wallet-create", "[--currency CODE]")
	currency := fs.String("currency", "USD", "ISO currency code")
	if err := parse(fs, args); err != nil {
		return err
	}
	w, err := e.app.Wallet.CreateWallet(ctx, strings.ToUpper(*currency))
	if err != nil {
		return err
	}
	printWallet(e, &w)
	return nil
}

func runDeposit(ctx context.Context, e *env, args []string) error {
	return runMove(ctx, e, "deposit", args, e.app.Wallet.AddMoney)
}

func runWithdraw(ctx context.Context, e *env, args []string) error {
	return runMove(ctx, e, "withdraw", args, e.app.Wallet.Withdraw)
}

func runMove(ctx context.Context, e *env, name string, args []string,
	move func(context.Context, decimal.Decimal, int64) error) error {
	fs := newFlags(e, name, "--amount AMOUNT --method PAYMENT_METHOD_ID")
	rawAmount := fs.String("amount", "", "amount to move")
	method := fs.Int64("method", 0, "payment method id")
	if err := parse(fs, args); err != nil {
		return err
	}
	amount, err := parseAmount(*rawAmount)
	if err != nil {
		return err
	}
	if err := requireID("method", *method); err != nil {
		return err
	}
	if err := move(ctx, amount, *method); err != nil {
		return err
	}
	e.out.Field("Balance", store.FormatAmount(e.app.Wallet.Balance()))
	return nil
}

func runTopUp(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "topup", "--amount AMOUNT [--wallet NUMBER]")
	rawAmount := fs.String("amount", "", "amount to add")
	number := fs.String("wallet", "", "wallet number (default: primary wallet)")
	if err := parse(fs, args); err != nil {
		return err
	}
	amount, err := parseAmount(*rawAmount)
	if err != nil {
		return err
	}
	if *number == "" {
		w, err := primaryWallet(ctx, e)
		if err != nil {
			return err
		}
		*number = w.WalletNumber
	}
	if err := e.app.Wallet.TopUp(ctx, *number, amount); err != nil {
		return err
	}
	e.out.Field("Balance", store.FormatAmount(e.app.Wallet.Balance()))
	return nil
}

func runTransfer(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "transfer", "--to WALLET_NUMBER --amount AMOUNT [--description TEXT] [--from WALLET_ID]")
	to := fs.String("to", "", "destination wallet number")
	rawAmount := fs.String("amount", "", "amount to send")
	description := fs.String("description", "", "note for the recipient")
	from := fs.Int64("from", 0, "source wallet id (default: primary wallet)")
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
	if *from == 0 {
		w, err := primaryWallet(ctx, e)
		if err != nil {
			return err
		}
		*from = w.ID
	}

	err = e.app.Wallet.Transfer(ctx, domain.TransferRequest{
		SourceWalletID:          *from,
		DestinationWalletNumber: *to,
		Amount:                  amount,
		Description:             *description,
	})
	if err != nil {
		return err
	}
	e.out.Field("Balance", store.FormatAmount(e.app.Wallet.Balance()))
	return nil
}

func runMethods(ctx context.Context, e *env, args []string) error {
	if err := e.app.Wallet.LoadPaymentMethods(ctx); err != nil {
		return err
	}
	methods := e.app.Wallet.Snapshot().Data.PaymentMethods
	if len(methods) == 0 {
		e.out.Info("No payment methods")
		return nil
	}
	rows := make([][]string, 0, len(methods))
	for _, m := range methods {
		def := ""
		if m.IsDefault {
			def = "yes"
		}
		rows = append(rows, []string{
			strconv.FormatInt(m.ID, 10), m.Type.String(), m.Provider, "•••• " + m.LastFour(), m.ExpiryDate, def,
		})
	}
	e.out.Table([]string{"ID", "TYPE", "PROVIDER", "ACCOUNT", "EXPIRES", "DEFAULT"}, rows)
	return nil
}

func runMethodAdd(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "method-add", "--type TYPE --provider NAME [--account NUMBER] [--expiry MM/YY] [--default]")
	var req domain.CreatePaymentMethodRequest
	kind := fs.String("type", "", "CARD, BANK_ACCOUNT, PAYPAL or WALLET")
	fs.StringVar(&req.Provider, "provider", "", "provider name, e.g. Visa")
	fs.StringVar(&req.AccountNumber, "account", "", "account or card number")
	fs.StringVar(&req.ExpiryDate, "expiry", "", "expiry date for cards")
	fs.BoolVar(&req.IsDefault, "default", false, "make this the default method")
	if err := parse(fs, args); err != nil {
		return err
	}
	req.Type = domain.PaymentMethodType(strings.ToUpper(*kind))
	if !req.Type.Valid() {
		return fmt.Errorf("invalid --type %q", *kind)
	}
	if req.Provider == "" {
		return errors.New("--provider is required")
	}

	m, err := e.app.Wallet.AddPaymentMethod(ctx, req)
	if err != nil {
		return err
	}
	e.out.Field("ID", m.ID)
	return nil
}

func runMethodRemove(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "method-rm", "--id PAYMENT_METHOD_ID")
	id := fs.Int64("id", 0, "payment method id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	return e.app.Wallet.RemovePaymentMethod(ctx, *id)
}
