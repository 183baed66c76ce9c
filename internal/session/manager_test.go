package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/payflow/internal/domain"
	apperrors "github.com/R3E-Network/payflow/internal/errors"
	"github.com/R3E-Network/payflow/internal/httputil"
	"github.com/R3E-Network/payflow/internal/notify"
	"github.com/R3E-Network/payflow/internal/storage"
	"github.com/R3E-Network/payflow/pkg/testutil"
)

var epoch = time.Unix(1_800_000_000, 0)

// fakeAuthBackend answers the auth endpoints and one protected route.
type fakeAuthBackend struct {
	mu           sync.Mutex
	loginStatus  int
	loginToken   string
	expiresIn    int64
	refreshToken string
	refreshCode  int
	refreshCalls int32
	protected    func(w http.ResponseWriter, r *http.Request)
	seenAuth     []string
}

func (b *fakeAuthBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.seenAuth = append(b.seenAuth, r.URL.Path+"|"+r.Header.Get("Authorization"))
	b.mu.Unlock()

	switch r.URL.Path {
	case "/api/auth/login", "/api/auth/signup":
		if b.loginStatus != 0 {
			w.WriteHeader(b.loginStatus)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		writeAuth(w, b.loginToken, b.expiresIn)
	case "/api/auth/refresh":
		atomic.AddInt32(&b.refreshCalls, 1)
		if b.refreshCode != 0 {
			w.WriteHeader(b.refreshCode)
			return
		}
		writeAuth(w, b.refreshToken, 0)
	case "/api/users/me":
		_ = json.NewEncoder(w).Encode(domain.User{ID: 1, Email: "a@b.com", FullName: "Ada Lovelace", PhoneNumber: "+100"})
	case "/api/users/change-password":
		_ = json.NewEncoder(w).Encode(domain.ChangePasswordResponse{Success: true})
	default:
		if b.protected != nil {
			b.protected(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *fakeAuthBackend) authHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.seenAuth...)
}

func writeAuth(w http.ResponseWriter, token string, expiresIn int64) {
	_ = json.NewEncoder(w).Encode(domain.AuthResponse{AccessToken: token, TokenType: "Bearer", ExpiresIn: expiresIn})
}

type harness struct {
	backend  *fakeAuthBackend
	gateway  *httputil.Gateway
	manager  *Manager
	clock    *testutil.FakeClock
	kv       *storage.Memory
	notifier *notify.Recorder
}

func newHarness(t *testing.T, backend *fakeAuthBackend) *harness {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	gw, err := httputil.New(httputil.Config{BaseURL: server.URL + "/api"})
	require.NoError(t, err)

	h := &harness{
		backend:  backend,
		gateway:  gw,
		clock:    testutil.NewFakeClock(epoch),
		kv:       storage.NewMemory(),
		notifier: &notify.Recorder{},
	}
	h.manager, err = New(Config{Gateway: gw, Storage: h.kv, Clock: h.clock, Notifier: h.notifier})
	require.NoError(t, err)
	gw.Use(h.manager.Middleware())
	return h
}

func tokenExpiringIn(d time.Duration) string {
	return testutil.MintToken(testutil.TokenClaims{
		UserID:   1,
		Email:    "a@b.com",
		FullName: "Ada Lovelace",
		Role:     "USER",
		Expiry:   epoch.Add(d),
	})
}

func TestNew_RequiresGateway(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestLogin_SchedulesAutoLogout(t *testing.T) {
	h := newHarness(t, &fakeAuthBackend{loginToken: tokenExpiringIn(time.Hour)})
	ctx := context.Background()

	require.NoError(t, h.manager.Login(ctx, "a@b.com", "pw"))

	s := h.manager.Current()
	assert.True(t, s.Authenticated)
	assert.True(t, h.manager.IsAuthenticated())
	assert.Equal(t, "a@b.com", s.User.Email)
	assert.Equal(t, "Ada Lovelace", s.User.FullName)
	assert.Equal(t, int64(1), s.User.ID)
	assert.Equal(t, []time.Duration{time.Hour}, h.clock.Delays())

	token, err := h.kv.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, s.Token, token)
	expiry, err := h.kv.Get(ctx, KeyExpiry)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(epoch.Add(time.Hour).UnixMilli(), 10), expiry)
}

func TestLogin_Failure(t *testing.T) {
	h := newHarness(t, &fakeAuthBackend{loginStatus: http.StatusUnauthorized})

	err := h.manager.Login(context.Background(), "a@b.com", "wrong")
	var details *apperrors.Details
	require.True(t, errors.As(err, &details))
	assert.Equal(t, apperrors.CategoryClient, details.Category)
	assert.Equal(t, "login", details.Op)

	snap := h.manager.Snapshot()
	assert.False(t, snap.Data.Authenticated)
	assert.False(t, snap.IsLoading)
	assert.Equal(t, details, snap.Err)
	assert.Len(t, h.notifier.Errors(), 1)
	assert.Equal(t, 0, h.kv.Len())
}

func TestLogin_InvalidToken(t *testing.T) {
	h := newHarness(t, &fakeAuthBackend{loginToken: "not-a-jwt"})

	err := h.manager.Login(context.Background(), "a@b.com", "pw")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken))
	assert.False(t, h.manager.IsAuthenticated())
	assert.Equal(t, 0, h.kv.Len())
}

func TestLogin_MissingExpFallsBackToExpiresIn(t *testing.T) {
	token := testutil.MintToken(testutil.TokenClaims{UserID: 1, Email: "a@b.com"})
	h := newHarness(t, &fakeAuthBackend{loginToken: token, expiresIn: 900})

	require.NoError(t, h.manager.Login(context.Background(), "a@b.com", "pw"))
	assert.Equal(t, epoch.Add(15*time.Minute), h.manager.Current().Expiry)
	assert.Equal(t, []time.Duration{15 * time.Minute}, h.clock.Delays())
}

func TestLogin_NoExpiryAtAllIsRejected(t *testing.T) {
	token := testutil.MintToken(testutil.TokenClaims{UserID: 1, Email: "a@b.com"})
	h := newHarness(t, &fakeAuthBackend{loginToken: token})

	err := h.manager.Login(context.Background(), "a@b.com", "pw")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
	assert.False(t, h.manager.IsAuthenticated())
}

func TestSignup(t *testing.T) {
	h := newHarness(t, &fakeAuthBackend{loginToken: tokenExpiringIn(time.Hour)})
	err := h.manager.Signup(context.Background(), domain.SignUpRequest{Email: "a@b.com", Password: "pw", FullName: "Ada Lovelace"})
	require.NoError(t, err)
	assert.True(t, h.manager.IsAuthenticated())
}

func TestAutoLogout_FiresOnce(t *testing.T) {
	h := newHarness(t, &fakeAuthBackend{loginToken: tokenExpiringIn(time.Hour)})
	ctx := context.Background()

	var reasons []Reason
	h.manager.OnLogout(func(r Reason, _ string) { reasons = append(reasons, r) })

	require.NoError(t, h.manager.Login(ctx, "a@b.com", "pw"))
	h.clock.Advance(59 * time.Minute)
	assert.True(t, h.manager.IsAuthenticated())

	h.clock.Advance(time.Minute)
	assert.False(t, h.manager.Current().Authenticated)
	assert.Equal(t, []Reason{ReasonExpired}, reasons)
	_, err := h.kv.Get(ctx, KeyToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	h.clock.Advance(time.Hour)
	h.manager.Logout(ctx)
	assert.Equal(t, []Reason{ReasonExpired}, reasons)
}

func TestReauthentication_ReschedulesTimer(t *testing.T) {
	backend := &fakeAuthBackend{loginToken: tokenExpiringIn(time.Hour)}
	h := newHarness(t, backend)
	ctx := context.Background()

	var count int
	h.manager.OnLogout(func(Reason, string) { count++ })

	require.NoError(t, h.manager.Login(ctx, "a@b.com", "pw"))
	backend.loginToken = tokenExpiringIn(2 * time.Hour)
	require.NoError(t, h.manager.Login(ctx, "a@b.com", "pw"))
	assert.Equal(t, 1, h.clock.PendingTimers())

	h.clock.Advance(time.Hour)
	assert.True(t, h.manager.IsAuthenticated())
	assert.Equal(t, 0, count)

	h.clock.Advance(time.Hour)
	assert.False(t, h.manager.IsAuthenticated())
	assert.Equal(t, 1, count)
}

func TestLogout_Idempotent(t *testing.T) {
	h := newHarness(t, &fakeAuthBackend{loginToken: tokenExpiringIn(time.Hour)})
	ctx := context.Background()

	var count int
	h.manager.OnLogout(func(r Reason, _ string) {
		assert.Equal(t, ReasonManual, r)
		count++
	})

	require.NoError(t, h.manager.Login(ctx, "a@b.com", "pw"))
	h.manager.Logout(ctx)
	h.manager.Logout(ctx)

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, h.clock.PendingTimers())
	assert.Empty(t, h.manager.Token())
}

func TestCheckAndRefreshToken(t *testing.T) {
	tests := []struct {
		name        string
		lifetime    time.Duration
		wantRefresh bool
	}{
		{"expires in 3 minutes", 3 * time.Minute, true},
		{"expires in 10 minutes", 10 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeAuthBackend{
				loginToken:   tokenExpiringIn(tt.lifetime),
				refreshToken: tokenExpiringIn(time.Hour),
			}
			h := newHarness(t, backend)
			require.NoError(t, h.manager.Login(context.Background(), "a@b.com", "pw"))

			refreshed, err := h.manager.CheckAndRefreshToken(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantRefresh, refreshed)
			if tt.wantRefresh {
				assert.Equal(t, int32(1), atomic.LoadInt32(&backend.refreshCalls))
				assert.Equal(t, epoch.Add(time.Hour), h.manager.Current().Expiry)
			} else {
				assert.Equal(t, int32(0), atomic.LoadInt32(&backend.refreshCalls))
			}
		})
	}
}

func TestCheckAndRefreshToken_Anonymous(t *testing.T) {
	h := newHarness(t, &fakeAuthBackend{})
	refreshed, err := h.manager.CheckAndRefreshToken(context.Background())
	assert.NoError(t, err)
	assert.False(t, refreshed)
}

func TestRefresh_UnauthorizedForcesLogout(t *testing.T) {
	backend := &fakeAuthBackend{loginToken: tokenExpiringIn(time.Hour), refreshCode: http.StatusUnauthorized}
	h := newHarness(t, backend)
	ctx := context.Background()

	var reasons []Reason
	h.manager.OnLogout(func(r Reason, _ string) { reasons = append(reasons, r) })

	require.NoError(t, h.manager.Login(ctx, "a@b.com", "pw"))
	err := h.manager.Refresh(ctx)
	require.Error(t, err)
	assert.False(t, h.manager.IsAuthenticated())
	assert.Equal(t, []Reason{ReasonUnauthorized}, reasons)
}

func TestRefresh_ServerErrorKeepsSession(t *testing.T) {
	backend := &fakeAuthBackend{loginToken: tokenExpiringIn(time.Hour), refreshCode: http.StatusServiceUnavailable}
	h := newHarness(t, backend)
	ctx := context.Background()

	require.NoError(t, h.manager.Login(ctx, "a@b.com", "pw"))
	err := h.manager.Refresh(ctx)

	var details *apperrors.Details
	require.True(t, errors.As(err, &details))
	assert.Equal(t, apperrors.CategoryServer, details.Category)
	assert.True(t, h.manager.IsAuthenticated())
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		h := newHarness(t, &fakeAuthBackend{})
		require.NoError(t, h.kv.Set(ctx, KeyToken, tokenExpiringIn(30*time.Minute)))
		require.NoError(t, h.kv.Set(ctx, KeyRememberMe, "true"))

		require.NoError(t, h.manager.Restore(ctx))
		assert.True(t, h.manager.IsAuthenticated())
		assert.True(t, h.manager.RememberMe())
		assert.Equal(t, []time.Duration{30 * time.Minute}, h.clock.Delays())
	})

	t.Run("expired token is cleared", func(t *testing.T) {
		h := newHarness(t, &fakeAuthBackend{})
		require.NoError(t, h.kv.Set(ctx, KeyToken, tokenExpiringIn(-time.Minute)))
		require.NoError(t, h.kv.Set(ctx, KeyExpiry, "1"))

		require.NoError(t, h.manager.Restore(ctx))
		assert.False(t, h.manager.IsAuthenticated())
		assert.Equal(t, 0, h.kv.Len())
	})

	t.Run("token without exp uses persisted expiry", func(t *testing.T) {
		h := newHarness(t, &fakeAuthBackend{})
		require.NoError(t, h.kv.Set(ctx, KeyToken, testutil.MintToken(testutil.TokenClaims{Email: "a@b.com"})))
		require.NoError(t, h.kv.Set(ctx, KeyExpiry, strconv.FormatInt(epoch.Add(time.Hour).UnixMilli(), 10)))

		require.NoError(t, h.manager.Restore(ctx))
		assert.True(t, h.manager.IsAuthenticated())
	})

	t.Run("garbage token is cleared", func(t *testing.T) {
		h := newHarness(t, &fakeAuthBackend{})
		require.NoError(t, h.kv.Set(ctx, KeyToken, "garbage"))

		require.NoError(t, h.manager.Restore(ctx))
		assert.False(t, h.manager.IsAuthenticated())
		_, err := h.kv.Get(ctx, KeyToken)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("nothing persisted", func(t *testing.T) {
		h := newHarness(t, &fakeAuthBackend{})
		require.NoError(t, h.manager.Restore(ctx))
		assert.False(t, h.manager.IsAuthenticated())
	})
}

func TestLoadProfileAndChangePassword(t *testing.T) {
	h := newHarness(t, &fakeAuthBackend{loginToken: tokenExpiringIn(time.Hour)})
	ctx := context.Background()
	require.NoError(t, h.manager.Login(ctx, "a@b.com", "pw"))

	user, err := h.manager.LoadProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "+100", user.PhoneNumber)
	assert.Equal(t, "+100", h.manager.Current().User.PhoneNumber)

	require.NoError(t, h.manager.ChangePassword(ctx, "old", "new"))
	assert.Equal(t, []string{"Password changed successfully"}, h.notifier.Successes())
}

func TestSaveRememberMe(t *testing.T) {
	h := newHarness(t, &fakeAuthBackend{})
	ctx := context.Background()

	require.NoError(t, h.manager.SaveRememberMe(ctx, true))
	v, err := h.kv.Get(ctx, KeyRememberMe)
	require.NoError(t, err)
	assert.Equal(t, "true", v)
	assert.True(t, h.manager.RememberMe())

	require.NoError(t, h.manager.SaveRememberMe(ctx, false))
	assert.False(t, h.manager.RememberMe())
}

func TestSubscribe_SeesLoginTransition(t *testing.T) {
	h := newHarness(t, &fakeAuthBackend{loginToken: tokenExpiringIn(time.Hour)})
	ch, cancel := h.manager.Subscribe(8)
	defer cancel()

	require.NoError(t, h.manager.Login(context.Background(), "a@b.com", "pw"))

	loading := <-ch
	assert.True(t, loading.IsLoading)
	done := <-ch
	assert.True(t, done.Data.Authenticated)
	assert.False(t, done.IsLoading)
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "expired", ReasonExpired.String())
	assert.Equal(t, "unknown", Reason(42).String())
}
