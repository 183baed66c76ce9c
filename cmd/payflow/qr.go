package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/R3E-Network/payflow/internal/domain"
	"github.com/R3E-Network/payflow/internal/qrscan"
	"github.com/R3E-Network/payflow/internal/store"
)

func init() {
	register(
		command{name: "qr", summary: "List QR codes or show one", run: runQRCodes},
		command{name: "qr-create", summary: "Generate a payment QR code", run: runQRCreate},
		command{name: "qr-image", summary: "Save a QR code image", run: runQRImage},
		command{name: "qr-pay", summary: "Pay a QR code by id or payflow:// URI", run: runQRPay},
		command{name: "qr-deactivate", summary: "Deactivate a QR code", run: runQRDeactivate},
	)
}

func printQRCode(e *env, q domain.QRCode) {
	e.out.Field("QR code", q.QRID)
	e.out.Field("Wallet", q.WalletNumber)
	if q.Amount != nil {
		fixed := ""
		if q.IsAmountFixed {
			fixed = " (fixed)"
		}
		e.out.Field("Amount", store.FormatAmount(*q.Amount)+fixed)
	}
	if q.Description != "" {
		e.out.Field("Description", q.Description)
	}
	e.out.Field("Active", q.IsActive && !q.Expired(e.app.Clock.Now()))
	e.out.Field("One-time", q.IsOneTime)
	if q.ExpiresAt != nil {
		e.out.Field("Expires", q.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	if uri, err := qrscan.Build(qrscan.Payment{
		QRID:         q.QRID,
		WalletNumber: q.WalletNumber,
		Currency:     q.Currency,
		Amount:       q.Amount,
		Description:  q.Description,
	}); err == nil {
		e.out.Field("URI", uri)
	}
}

func runQRCodes(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "qr", "[--id QR_ID]")
	id := fs.String("id", "", "show one QR code")
	if err := parse(fs, args); err != nil {
		return err
	}
	s := e.app.QRCodes
	if *id != "" {
		if err := s.LoadByID(ctx, *id); err != nil {
			return err
		}
		if cur := s.Snapshot().Data.Current; cur != nil {
			printQRCode(e, *cur)
		}
		return nil
	}

	if err := s.LoadAll(ctx); err != nil {
		return err
	}
	codes := s.Snapshot().Data.Codes
	if len(codes) == 0 {
		e.out.Info("No QR codes")
		return nil
	}
	now := e.app.Clock.Now()
	rows := make([][]string, 0, len(codes))
	for _, q := range codes {
		amount := "any"
		if q.Amount != nil {
			amount = store.FormatAmount(*q.Amount)
		}
		rows = append(rows, []string{
			strconv.FormatInt(q.ID, 10), q.QRID, amount, strconv.FormatBool(q.IsActive && !q.Expired(now)), q.Description,
		})
	}
	e.out.Table([]string{"ID", "QR ID", "AMOUNT", "ACTIVE", "DESCRIPTION"}, rows)
	return nil
}

func runQRCreate(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "qr-create", "[--amount AMOUNT] [--fixed=false] [--one-time=false] [--expires MINUTES] [--description TEXT] [--wallet NUMBER]")
	rawAmount := fs.String("amount", "", "amount to ask for (empty lets the payer choose)")
	fixed := fs.Bool("fixed", true, "the payer cannot change the amount")
	oneTime := fs.Bool("one-time", true, "the code can be paid once")
	expires := fs.Int("expires", 0, "minutes until the code expires (0 never)")
	description := fs.String("description", "", "what the payment is for")
	wallet := fs.String("wallet", "", "wallet to receive into (default: primary wallet)")
	if err := parse(fs, args); err != nil {
		return err
	}

	req := domain.PaymentQRCodeRequest{
		WalletNumber:      *wallet,
		IsAmountFixed:     fixed,
		IsOneTime:         oneTime,
		Description:       *description,
		ExpirationMinutes: *expires,
	}
	if *rawAmount != "" {
		amount, err := parseAmount(*rawAmount)
		if err != nil {
			return err
		}
		req.Amount = &amount
	}
	if req.WalletNumber == "" {
		w, err := primaryWallet(ctx, e)
		if err != nil {
			return err
		}
		req.WalletNumber = w.WalletNumber
	}

	q, err := e.app.QRCodes.GeneratePayment(ctx, req)
	if err != nil {
		return err
	}
	printQRCode(e, q)
	return nil
}

func runQRImage(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "qr-image", "--id QR_ID [--out FILE]")
	id := fs.String("id", "", "QR code id")
	out := fs.String("out", "", "output file (default qr-ID.png)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}

	spin := e.out.Spinner("Loading QR code image")
	spin.Start()
	err := e.app.QRCodes.LoadImage(ctx, *id)
	spin.Stop()
	if err != nil {
		return err
	}
	img, err := e.app.QRCodes.ImageBytes()
	if err != nil {
		return err
	}
	if *out == "" {
		*out = fmt.Sprintf("qr-%s.png", *id)
	}
	if err := os.WriteFile(*out, img, 0o644); err != nil {
		return err
	}
	e.out.Info("Saved " + *out)
	return nil
}

func runQRPay(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "qr-pay", "(--id QR_ID | --uri payflow://payment?...) [--amount AMOUNT] [--wallet NUMBER] [--method ID]")
	id := fs.String("id", "", "QR code id")
	uri := fs.String("uri", "", "scanned payment URI")
	rawAmount := fs.String("amount", "", "amount to pay when the code does not fix one")
	wallet := fs.String("wallet", "", "wallet to pay from (default: primary wallet)")
	method := fs.String("method", "", "pay with this payment method instead of the wallet")
	if err := parse(fs, args); err != nil {
		return err
	}

	var req domain.QRPaymentRequest
	if *uri != "" {
		p, err := qrscan.Parse(*uri)
		if err != nil {
			return err
		}
		*id = p.QRID
		req.Amount = p.Amount
	}
	if *id == "" {
		return errors.New("--id or --uri is required")
	}
	if *rawAmount != "" {
		amount, err := parseAmount(*rawAmount)
		if err != nil {
			return err
		}
		req.Amount = &amount
	}
	req.PaymentMethodID = *method
	if *method == "" {
		if *wallet == "" {
			w, err := primaryWallet(ctx, e)
			if err != nil {
				return err
			}
			*wallet = w.WalletNumber
		}
		req.SourceWalletNumber = *wallet
	}

	tx, err := e.app.QRCodes.Pay(ctx, *id, req)
	if err != nil {
		return err
	}
	e.out.Field("Transaction", tx.TransactionNumber)
	e.out.Field("Balance", store.FormatAmount(e.app.Wallet.Balance()))
	return nil
}

func runQRDeactivate(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "qr-deactivate", "--id QR_ID")
	id := fs.String("id", "", "QR code id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}
	_, err := e.app.QRCodes.Deactivate(ctx, *id)
	return err
}
