// Package app wires the gateway, session manager and domain stores into one
// client, and runs the background daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/payflow/internal/archive"
	"github.com/R3E-Network/payflow/internal/clock"
	"github.com/R3E-Network/payflow/internal/config"
	"github.com/R3E-Network/payflow/internal/httputil"
	"github.com/R3E-Network/payflow/internal/logging"
	"github.com/R3E-Network/payflow/internal/notify"
	"github.com/R3E-Network/payflow/internal/session"
	"github.com/R3E-Network/payflow/internal/storage"
	"github.com/R3E-Network/payflow/internal/store"
)

// ErrArchiveDisabled is returned by ArchiveTransactions without an archive.
var ErrArchiveDisabled = errors.New("app: archive is not enabled")

// Options overrides pieces New would otherwise build from the config.
type Options struct {
	Config     *config.Config
	Logger     *logging.Logger
	Notifier   notify.Notifier
	Clock      clock.Clock
	Storage    storage.KV
	HTTPClient *http.Client
	// Archive replaces the one opened from Config.Archive.
	Archive *archive.Archive
}

// App is a fully wired client.
type App struct {
	Config   *config.Config
	Logger   *logging.Logger
	Notifier notify.Notifier
	Clock    clock.Clock
	Gateway  *httputil.Gateway
	Storage  storage.KV
	Session  *session.Manager

	Wallet       *store.WalletStore
	Transactions *store.TransactionStore
	Requests     *store.MoneyRequestStore
	QRCodes      *store.QRCodeStore
	Rates        *store.ExchangeRateStore

	// Archive is nil unless archiving is enabled.
	Archive *archive.Archive
}

// New builds the client and restores any persisted session.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("payflow", cfg.Logging.Level, cfg.Logging.Format)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLog(logger)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	gw, err := httputil.New(httputil.Config{
		BaseURL:      cfg.API.BaseURL,
		Timeout:      cfg.API.Timeout,
		MaxBodyBytes: cfg.API.MaxBodyBytes,
		HTTPClient:   opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("app: gateway: %w", err)
	}
	gw.Use(httputil.RequestID(), httputil.Logging(logger), httputil.Metrics())
	if cfg.API.RateLimit > 0 {
		gw.Use(httputil.RateLimit(rate.NewLimiter(rate.Limit(cfg.API.RateLimit), cfg.API.Burst)))
	}

	kv := opts.Storage
	if kv == nil {
		kv, err = storage.Open(cfg.StorageOptions())
		if err != nil {
			return nil, fmt.Errorf("app: storage: %w", err)
		}
	}

	sess, err := session.New(session.Config{
		Gateway:          gw,
		Storage:          kv,
		Clock:            clk,
		Notifier:         notifier,
		Logger:           logger,
		RefreshThreshold: cfg.Session.RefreshThreshold,
	})
	if err != nil {
		return nil, err
	}
	gw.Use(sess.Middleware())

	deps := store.Deps{Gateway: gw, Notifier: notifier, Logger: logger, Clock: clk}
	a := &App{
		Config:       cfg,
		Logger:       logger,
		Notifier:     notifier,
		Clock:        clk,
		Gateway:      gw,
		Storage:      kv,
		Session:      sess,
		Wallet:       store.NewWalletStore(deps),
		Transactions: store.NewTransactionStore(deps),
		Requests:     store.NewMoneyRequestStore(deps),
		QRCodes:      store.NewQRCodeStore(deps),
		Rates:        store.NewExchangeRateStore(deps),
		Archive:      opts.Archive,
	}

	// Payments move money out of the wallet, so the balance is re-read.
	a.Requests.AfterPayment = a.Wallet.LoadWallet
	a.QRCodes.AfterPayment = a.Wallet.LoadWallet

	sess.OnLogout(func(reason session.Reason, returnPath string) {
		a.resetStores()
		logger.WithFields(logrus.Fields{
			"reason":      reason.String(),
			"return_path": returnPath,
		}).Info("session ended")
	})

	if a.Archive == nil && cfg.Archive.Enabled {
		arc, err := archive.Open(ctx, cfg.Archive.DSN, archive.Options{Table: cfg.Archive.Table, Clock: clk})
		if err != nil {
			return nil, fmt.Errorf("app: archive: %w", err)
		}
		a.Archive = arc
	}
	if a.Archive != nil {
		if err := a.Archive.EnsureSchema(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app: archive schema: %w", err)
		}
	}

	if err := sess.Restore(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// ArchiveTransactions loads the full transaction history and upserts it into
// the archive. It reports how many rows were written.
func (a *App) ArchiveTransactions(ctx context.Context) (int, error) {
	if a.Archive == nil {
		return 0, ErrArchiveDisabled
	}
	if err := a.Transactions.LoadAllTransactions(ctx); err != nil {
		return 0, err
	}
	return a.Archive.SaveTransactions(ctx, a.Transactions.Snapshot().Data.Transactions)
}

func (a *App) resetStores() {
	a.Wallet.Reset()
	a.Transactions.Reset()
	a.Requests.Reset()
	a.QRCodes.Reset()
	a.Rates.Reset()
}

// Close stops the session timer and releases storage and the archive.
func (a *App) Close() error {
	a.Session.Close()

	var errs []error
	if a.Archive != nil {
		errs = append(errs, a.Archive.Close())
	}
	if c, ok := a.Storage.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
