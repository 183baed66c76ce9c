package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	apperrors "github.com/R3E-Network/payflow/internal/errors"
	"github.com/R3E-Network/payflow/internal/logging"
	"github.com/R3E-Network/payflow/internal/metrics"
	"github.com/R3E-Network/payflow/internal/middleware"
	"github.com/R3E-Network/payflow/internal/state"
	"github.com/R3E-Network/payflow/internal/store"
)

const (
	shutdownTimeout        = 30 * time.Second
	limiterCleanupInterval = 5 * time.Minute
)

// Daemon keeps the stores fresh on a cron schedule and serves their state,
// health and metrics over HTTP.
type Daemon struct {
	app     *App
	logger  *logging.Logger
	cron    *cron.Cron
	limiter *middleware.RateLimiter
	server  *http.Server
}

// NewDaemon schedules the refresh and archive jobs. Nothing runs until Run.
func NewDaemon(a *App) (*Daemon, error) {
	cfg := a.Config.Daemon
	d := &Daemon{
		app:     a,
		logger:  a.Logger,
		limiter: middleware.NewRateLimiter(cfg.RateLimit, cfg.Burst, a.Logger),
	}
	cl := cronLogger{logger: a.Logger}
	d.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := d.cron.AddFunc(cfg.RefreshSchedule, d.job("refresh", d.Refresh)); err != nil {
		return nil, fmt.Errorf("app: refresh schedule %q: %w", cfg.RefreshSchedule, err)
	}
	if a.Archive != nil && cfg.ArchiveSchedule != "" {
		if _, err := d.cron.AddFunc(cfg.ArchiveSchedule, d.job("archive", d.archive)); err != nil {
			return nil, fmt.Errorf("app: archive schedule %q: %w", cfg.ArchiveSchedule, err)
		}
	}

	d.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return d, nil
}

// Run serves until ctx is cancelled, then drains the server and the running
// jobs.
func (d *Daemon) Run(ctx context.Context) error {
	d.limiter.StartCleanup(limiterCleanupInterval)
	defer d.limiter.Stop()

	d.cron.Start()
	go d.job("refresh", d.Refresh)()

	errCh := make(chan error, 1)
	go func() {
		d.logger.WithField("addr", d.server.Addr).Info("daemon listening")
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	d.logger.Info("daemon shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.WithError(err).Warn("daemon server shutdown")
	}
	select {
	case <-d.cron.Stop().Done():
	case <-shutdownCtx.Done():
		d.logger.Warn("daemon jobs still running at shutdown")
	}
	return runErr
}

// Refresh renews the token when it nears expiry, then reloads the wallet,
// recent transactions and pending requests. It does nothing while logged
// out.
func (d *Daemon) Refresh(ctx context.Context) error {
	sess := d.app.Session
	if !sess.IsAuthenticated() {
		d.logger.WithContext(ctx).Debug("refresh skipped: not logged in")
		return nil
	}
	if _, err := sess.CheckAndRefreshToken(ctx); err != nil {
		return err
	}
	if !sess.IsAuthenticated() {
		return nil
	}

	return errors.Join(
		d.app.Wallet.LoadWallet(ctx),
		d.app.Transactions.LoadRecent(ctx, d.app.Config.Daemon.RecentLimit),
		d.app.Requests.LoadPending(ctx),
	)
}

func (d *Daemon) archive(ctx context.Context) error {
	if !d.app.Session.IsAuthenticated() {
		return nil
	}
	n, err := d.app.ArchiveTransactions(ctx)
	if err != nil {
		return err
	}
	d.logger.WithContext(ctx).WithField("rows", n).Info("transactions archived")
	return nil
}

// job adapts fn to a cron func with its own trace id and a bounded run time.
func (d *Daemon) job(name string, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.app.Config.API.Timeout*4)
		defer cancel()
		ctx = logging.WithTraceID(ctx, name+"-"+d.app.Clock.Now().UTC().Format("20060102T150405"))

		start := time.Now()
		err := fn(ctx)
		metrics.RecordJobRun(name, err == nil)

		entry := d.logger.WithContext(ctx).WithFields(logrus.Fields{
			"job":      name,
			"duration": time.Since(start).String(),
		})
		if err != nil {
			entry.WithError(err).Warn("daemon job failed")
			return
		}
		entry.Debug("daemon job finished")
	}
}

// =============================================================================
// HTTP
// =============================================================================

// Router serves /healthz, /metrics, /state and /state/{store}.
func (d *Daemon) Router() http.Handler {
	cfg := d.app.Config.Daemon

	r := mux.NewRouter()
	r.Use(
		middleware.Logging(d.logger),
		middleware.Metrics(),
		d.limiter.Handler,
		middleware.NewTokenAuth(cfg.Token, d.logger, []string{"/healthz"}).Handler,
	)

	r.HandleFunc("/healthz", d.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/state", d.handleState).Methods(http.MethodGet)
	r.HandleFunc("/state/{store}", d.handleStoreState).Methods(http.MethodGet)

	// Route middleware never sees unmatched OPTIONS preflights.
	return middleware.CORS(cfg.AllowedOrigins)(r)
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"authenticated": d.app.Session.IsAuthenticated(),
	})
}

// SessionView is the public part of the session; the token is never served.
type SessionView struct {
	Authenticated bool      `json:"authenticated"`
	Email         string    `json:"email,omitempty"`
	FullName      string    `json:"fullName,omitempty"`
	Expiry        time.Time `json:"expiry,omitempty"`
}

// StoreView summarises one store snapshot.
type StoreView struct {
	Status  string `json:"status"`
	Version uint64 `json:"version"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// StateView is the /state document.
type StateView struct {
	Session      SessionView          `json:"session"`
	Balance      string               `json:"balance"`
	Stores       map[string]StoreView `json:"stores"`
	GeneratedAt  time.Time            `json:"generatedAt"`
	RecentLimit  int                  `json:"recentLimit"`
	ArchiveReady bool                 `json:"archiveReady"`
}

func (d *Daemon) handleState(w http.ResponseWriter, r *http.Request) {
	stores := make(map[string]StoreView, len(storeNames))
	for _, name := range storeNames {
		view, _ := d.storeView(name, false)
		stores[name] = view
	}
	writeJSON(w, http.StatusOK, StateView{
		Session:      d.sessionView(),
		Balance:      store.FormatAmount(d.app.Wallet.Balance()),
		Stores:       stores,
		GeneratedAt:  d.app.Clock.Now().UTC(),
		RecentLimit:  d.app.Config.Daemon.RecentLimit,
		ArchiveReady: d.app.Archive != nil,
	})
}

func (d *Daemon) handleStoreState(w http.ResponseWriter, r *http.Request) {
	view, ok := d.storeView(mux.Vars(r)["store"], true)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown store"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

var storeNames = []string{"wallet", "transactions", "requests", "qr-codes", "rates"}

func (d *Daemon) storeView(name string, withData bool) (StoreView, bool) {
	switch name {
	case "wallet":
		return viewOf(d.app.Wallet.Snapshot(), withData), true
	case "transactions":
		return viewOf(d.app.Transactions.Snapshot(), withData), true
	case "requests":
		return viewOf(d.app.Requests.Snapshot(), withData), true
	case "qr-codes":
		snap := d.app.QRCodes.Snapshot()
		// The image is large and already served by the backend.
		snap.Data.Image = ""
		return viewOf(snap, withData), true
	case "rates":
		return viewOf(d.app.Rates.Snapshot(), withData), true
	default:
		return StoreView{}, false
	}
}

func viewOf[T any](snap state.Snapshot[T], withData bool) StoreView {
	view := StoreView{Status: snap.Status().String(), Version: snap.Version}
	if snap.Err != nil {
		view.Error = errorText(snap.Err)
	}
	if withData {
		view.Data = snap.Data
	}
	return view
}

func errorText(d *apperrors.Details) string {
	if d.Op != "" {
		return d.Op + ": " + d.Message
	}
	return d.Message
}

func (d *Daemon) sessionView() SessionView {
	s := d.app.Session.Current()
	if !d.app.Session.IsAuthenticated() {
		return SessionView{}
	}
	return SessionView{
		Authenticated: true,
		Email:         s.User.Email,
		FullName:      s.User.FullName,
		Expiry:        s.Expiry.UTC(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// cronLogger routes cron's own messages through logrus.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
