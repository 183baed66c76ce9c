package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/payflow/internal/archive"
	"github.com/R3E-Network/payflow/internal/config"
	"github.com/R3E-Network/payflow/internal/domain"
	"github.com/R3E-Network/payflow/internal/logging"
	"github.com/R3E-Network/payflow/internal/notify"
	"github.com/R3E-Network/payflow/internal/storage"
	"github.com/R3E-Network/payflow/internal/store"
	"github.com/R3E-Network/payflow/pkg/testutil"
)

var epoch = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// backend is a fake PayFlow API that counts hits per route pattern. A later
// handle call for the same pattern replaces the handler.
type backend struct {
	mux      *http.ServeMux
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
	auths    map[string]string
}

func newBackend() *backend {
	b := &backend{
		mux:      http.NewServeMux(),
		handlers: map[string]http.HandlerFunc{},
		hits:     map[string]int{},
		auths:    map[string]string{},
	}
	token := testutil.MintToken(testutil.TokenClaims{
		UserID: 1, Email: "alice@example.com", FullName: "Alice", Expiry: epoch.Add(time.Hour),
	})
	b.handle("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"accessToken": token, "tokenType": "Bearer", "expiresIn": 3600})
	})
	b.handle("GET /api/wallets/primary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 7, "walletNumber": "W-7", "balance": "120.5", "currency": "USD"})
	})
	b.handle("GET /api/transactions/recent", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{map[string]any{"id": 1, "type": "DEPOSIT", "status": "COMPLETED", "amount": "10"}})
	})
	b.handle("GET /api/money-requests/pending", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{map[string]any{"id": 3, "status": "PENDING", "amount": "5"}})
	})
	return b
}

func (b *backend) handle(pattern string, h http.HandlerFunc) {
	b.mu.Lock()
	_, registered := b.handlers[pattern]
	b.handlers[pattern] = h
	b.mu.Unlock()
	if registered {
		return
	}
	b.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[pattern]++
		b.auths[pattern] = r.Header.Get("Authorization")
		handler := b.handlers[pattern]
		b.mu.Unlock()
		handler(w, r)
	})
}

func (b *backend) count(pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[pattern]
}

func (b *backend) auth(pattern string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auths[pattern]
}

type harness struct {
	backend  *backend
	app      *App
	clock    *testutil.FakeClock
	notifier *notify.Recorder
}

func newHarness(t *testing.T, mutate func(*config.Config, *Options)) *harness {
	t.Helper()
	b := newBackend()
	srv := httptest.NewServer(b.mux)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL + "/api"
	cfg.Storage.Backend = "memory"
	cfg.Daemon.ListenAddr = "127.0.0.1:0"

	h := &harness{backend: b, clock: testutil.NewFakeClock(epoch), notifier: &notify.Recorder{}}
	opts := Options{
		Config:   cfg,
		Logger:   logging.NewDiscard(),
		Notifier: h.notifier,
		Clock:    h.clock,
		Storage:  storage.NewMemory(),
	}
	if mutate != nil {
		mutate(cfg, &opts)
	}

	a, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	h.app = a
	return h
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	require.NoError(t, h.app.Session.Login(context.Background(), "alice@example.com", "pw"))
	require.True(t, h.app.Session.IsAuthenticated())
}

func TestNew_AttachesBearerToken(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	require.NoError(t, h.app.Wallet.LoadWallet(context.Background()))

	assert.Equal(t, "Bearer "+h.app.Session.Token(), h.backend.auth("GET /api/wallets/primary"))
	assert.Equal(t, "$120.50", store.FormatAmount(h.app.Wallet.Balance()))
}

func TestNew_PaymentReloadsWallet(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.handle("POST /api/money-requests/{id}/pay", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 99, "type": "REQUEST_PAYMENT"})
	})
	h.backend.handle("POST /api/qr-codes/{id}/pay", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 100, "type": "PAYMENT"})
	})
	h.login(t)
	ctx := context.Background()

	_, err := h.app.Requests.Pay(ctx, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, h.backend.count("GET /api/wallets/primary"))

	_, err = h.app.QRCodes.Pay(ctx, "QR-1", domain.QRPaymentRequest{SourceWalletNumber: "W-7"})
	require.NoError(t, err)
	assert.Equal(t, 2, h.backend.count("GET /api/wallets/primary"))
}

func TestNew_LogoutResetsStores(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	ctx := context.Background()
	require.NoError(t, h.app.Wallet.LoadWallet(ctx))
	require.NoError(t, h.app.Requests.LoadPending(ctx))
	require.NotNil(t, h.app.Wallet.Snapshot().Data.Wallet)

	h.app.Session.Logout(ctx)

	assert.False(t, h.app.Session.IsAuthenticated())
	assert.Nil(t, h.app.Wallet.Snapshot().Data.Wallet)
	assert.Empty(t, h.app.Requests.Snapshot().Data.Pending)
	assert.False(t, h.app.Wallet.Snapshot().Loaded)
}

func TestNew_RestoresPersistedSession(t *testing.T) {
	kv := storage.NewMemory()
	token := testutil.MintToken(testutil.TokenClaims{UserID: 2, Email: "bob@example.com", Expiry: epoch.Add(time.Hour)})
	require.NoError(t, kv.Set(context.Background(), "auth_token", token))

	h := newHarness(t, func(_ *config.Config, o *Options) { o.Storage = kv })

	assert.True(t, h.app.Session.IsAuthenticated())
	assert.Equal(t, token, h.app.Session.Token())
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.API.BaseURL = "::not a url"
	_, err := New(context.Background(), Options{Config: cfg, Logger: logging.NewDiscard(), Storage: storage.NewMemory()})
	require.Error(t, err)
}

func TestArchiveTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "payflow_transactions"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	h := newHarness(t, func(_ *config.Config, o *Options) {
		o.Archive = archive.New(sqlx.NewDb(db, "postgres"), archive.Options{Clock: testutil.NewFakeClock(epoch)})
	})
	h.backend.handle("GET /api/transactions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"content": []any{
			map[string]any{"id": 1, "transactionNumber": "T-1", "type": "DEPOSIT", "status": "COMPLETED", "amount": "10"},
			map[string]any{"id": 2, "transactionNumber": "T-2", "type": "SENT", "status": "PENDING", "amount": "4"},
		}})
	})
	h.login(t)

	insert := regexp.QuoteMeta(`INSERT INTO "payflow_transactions"`)
	mock.ExpectBegin()
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := h.app.ArchiveTransactions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveTransactions_Disabled(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.app.ArchiveTransactions(context.Background())
	assert.ErrorIs(t, err, ErrArchiveDisabled)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}
