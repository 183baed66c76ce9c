// Package session owns the authentication token lifecycle: login, signup,
// refresh, auto-logout at expiry and rehydration from persisted storage.
//
// The Manager is the only writer of the persisted token keys.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/payflow/internal/clock"
	"github.com/R3E-Network/payflow/internal/domain"
	apperrors "github.com/R3E-Network/payflow/internal/errors"
	"github.com/R3E-Network/payflow/internal/httputil"
	"github.com/R3E-Network/payflow/internal/logging"
	"github.com/R3E-Network/payflow/internal/metrics"
	"github.com/R3E-Network/payflow/internal/notify"
	"github.com/R3E-Network/payflow/internal/state"
	"github.com/R3E-Network/payflow/internal/storage"
)

// Persisted keys.
const (
	KeyToken      = "auth_token"
	KeyExpiry     = "token_expiry"
	KeyRememberMe = "remember_me"
)

// DefaultRefreshThreshold is the remaining lifetime below which a token is refreshed.
const DefaultRefreshThreshold = 5 * time.Minute

// Reason tells logout hooks why the session ended.
type Reason int

const (
	ReasonManual Reason = iota
	ReasonExpired
	ReasonUnauthorized
	ReasonInvalidToken
)

func (r Reason) String() string {
	switch r {
	case ReasonManual:
		return "manual"
	case ReasonExpired:
		return "expired"
	case ReasonUnauthorized:
		return "unauthorized"
	case ReasonInvalidToken:
		return "invalid-token"
	default:
		return "unknown"
	}
}

// LogoutHook runs after an authenticated session ends. returnPath is the
// backend path whose failure forced the logout, if any.
type LogoutHook func(reason Reason, returnPath string)

// Session is the observable session state. Authenticated holds iff a
// non-expired token is present.
type Session struct {
	Authenticated bool
	User          domain.User
	Token         string
	Expiry        time.Time
	RememberMe    bool
}

// Snapshot is a published view of the session.
type Snapshot = state.Snapshot[Session]

// Config wires a Manager.
type Config struct {
	Gateway          *httputil.Gateway
	Storage          storage.KV
	Clock            clock.Clock
	Notifier         notify.Notifier
	Logger           *logging.Logger
	RefreshThreshold time.Duration
}

// Manager implements the session state machine.
type Manager struct {
	gw        *httputil.Gateway
	kv        storage.KV
	clock     clock.Clock
	notifier  notify.Notifier
	logger    *logging.Logger
	threshold time.Duration
	state     *state.Container[Session]

	// mu serialises transitions so the persisted token, the timer and the
	// published state always describe the same session.
	mu         sync.Mutex
	generation uint64
	timer      clock.Timer
	hooks      []LogoutHook
	refreshing *refreshCall
}

type refreshCall struct {
	done chan struct{}
	err  error
}

// New creates a Manager in the anonymous state. Call Restore to rehydrate a
// persisted session.
func New(cfg Config) (*Manager, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("session: gateway is required")
	}
	if cfg.Storage == nil {
		cfg.Storage = storage.NewMemory()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscard()
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = DefaultRefreshThreshold
	}
	return &Manager{
		gw:        cfg.Gateway,
		kv:        cfg.Storage,
		clock:     cfg.Clock,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		threshold: cfg.RefreshThreshold,
		state:     state.New(Session{}),
	}, nil
}

// =============================================================================
// Observation
// =============================================================================

// Snapshot returns the current published state.
func (m *Manager) Snapshot() Snapshot { return m.state.Snapshot() }

// Current returns the current session.
func (m *Manager) Current() Session { return m.state.Snapshot().Data }

// Subscribe streams every subsequent snapshot.
func (m *Manager) Subscribe(buf int) (<-chan Snapshot, func()) { return m.state.Subscribe(buf) }

// IsAuthenticated reports whether a non-expired token is held.
func (m *Manager) IsAuthenticated() bool {
	s := m.Current()
	return s.Authenticated && s.Expiry.After(m.clock.Now())
}

// Token returns the bearer token, or "" when not authenticated.
func (m *Manager) Token() string {
	if !m.IsAuthenticated() {
		return ""
	}
	return m.Current().Token
}

// RememberMe reports the persisted remember-me preference.
func (m *Manager) RememberMe() bool { return m.Current().RememberMe }

// OnLogout registers a hook fired after an authenticated session ends.
func (m *Manager) OnLogout(h LogoutHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// ClearError drops the last recorded error.
func (m *Manager) ClearError() {
	m.state.Update(func(s *Snapshot) { s.Err = nil })
}

// Close stops the auto-logout timer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

// =============================================================================
// Transitions
// =============================================================================

// Login authenticates with email and password.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.beginLoading()
	var resp domain.AuthResponse
	if err := m.gw.PostJSON(ctx, "auth/login", domain.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return m.fail(ctx, "login", err)
	}
	if err := m.establish(ctx, resp); err != nil {
		m.end(ctx, ReasonInvalidToken, "")
		return m.fail(ctx, "login", err)
	}
	metrics.RecordSessionEvent("login")
	m.logger.WithContext(ctx).WithField("email", email).Info("logged in")
	return nil
}

// Signup registers a new account and authenticates with the returned token.
func (m *Manager) Signup(ctx context.Context, req domain.SignUpRequest) error {
	m.beginLoading()
	var resp domain.AuthResponse
	if err := m.gw.PostJSON(ctx, "auth/signup", req, &resp); err != nil {
		return m.fail(ctx, "signup", err)
	}
	if err := m.establish(ctx, resp); err != nil {
		m.end(ctx, ReasonInvalidToken, "")
		return m.fail(ctx, "signup", err)
	}
	metrics.RecordSessionEvent("signup")
	m.logger.WithContext(ctx).WithField("email", req.Email).Info("signed up")
	return nil
}

// Refresh exchanges the refresh cookie for a new access token. A 401 ends
// the session.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.refresh(ctx, "")
}

// CheckAndRefreshToken refreshes when the token's remaining lifetime is below
// the threshold. It reports whether a refresh happened.
func (m *Manager) CheckAndRefreshToken(ctx context.Context) (bool, error) {
	s := m.Current()
	if !s.Authenticated || s.Token == "" {
		return false, nil
	}
	if s.Expiry.Sub(m.clock.Now()) >= m.threshold {
		return false, nil
	}
	if err := m.refresh(ctx, ""); err != nil {
		return false, err
	}
	return true, nil
}

// Logout ends the session. Calling it while anonymous is a no-op.
func (m *Manager) Logout(ctx context.Context) {
	m.end(ctx, ReasonManual, "")
}

// Restore rehydrates a persisted session. Expired or unreadable tokens are
// cleared.
func (m *Manager) Restore(ctx context.Context) error {
	remember, err := m.kv.Get(ctx, KeyRememberMe)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("session: restore: %w", err)
	}
	m.state.Update(func(s *Snapshot) { s.Data.RememberMe = remember == "true" })

	token, err := m.kv.Get(ctx, KeyToken)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: restore: %w", err)
	}

	id, err := DecodeToken(token)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).Warn("discarding unreadable persisted token")
		m.clearPersisted(ctx)
		return nil
	}
	if id.Expiry.IsZero() {
		id.Expiry = m.persistedExpiry(ctx)
	}
	if !id.Expiry.After(m.clock.Now()) {
		m.logger.WithContext(ctx).Info("persisted token expired")
		m.clearPersisted(ctx)
		return nil
	}

	m.mu.Lock()
	m.activateLocked(token, id)
	m.mu.Unlock()

	metrics.RecordSessionEvent("restore")
	return nil
}

// LoadProfile fetches the full user record.
func (m *Manager) LoadProfile(ctx context.Context) (domain.User, error) {
	m.beginLoading()
	var user domain.User
	if err := m.gw.GetJSON(ctx, "users/me", nil, &user); err != nil {
		return domain.User{}, m.fail(ctx, "load profile", err)
	}
	m.state.Update(func(s *Snapshot) {
		s.IsLoading = false
		if s.Data.Authenticated {
			s.Data.User = user
		}
	})
	return user, nil
}

// ChangePassword changes the account password.
func (m *Manager) ChangePassword(ctx context.Context, current, next string) error {
	m.state.Update(func(s *Snapshot) { s.IsProcessing = true; s.Err = nil })
	var resp domain.ChangePasswordResponse
	req := domain.ChangePasswordRequest{CurrentPassword: current, NewPassword: next}
	if err := m.gw.PostJSON(ctx, "users/change-password", req, &resp); err != nil {
		return m.fail(ctx, "change password", err)
	}
	m.state.Update(func(s *Snapshot) { s.IsProcessing = false })
	msg := resp.Message
	if msg == "" {
		msg = "Password changed successfully"
	}
	m.notifier.Success(msg)
	return nil
}

// SaveRememberMe persists the remember-me preference.
func (m *Manager) SaveRememberMe(ctx context.Context, enabled bool) error {
	var err error
	if enabled {
		err = m.kv.Set(ctx, KeyRememberMe, "true")
	} else {
		err = m.kv.Delete(ctx, KeyRememberMe)
	}
	if err != nil {
		return fmt.Errorf("session: save remember me: %w", err)
	}
	m.state.Update(func(s *Snapshot) { s.Data.RememberMe = enabled })
	return nil
}

// =============================================================================
// Internals
// =============================================================================

func (m *Manager) refresh(ctx context.Context, returnPath string) error {
	m.mu.Lock()
	if call := m.refreshing; call != nil {
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	m.refreshing = call
	m.mu.Unlock()

	call.err = m.doRefresh(ctx, returnPath)

	m.mu.Lock()
	m.refreshing = nil
	m.mu.Unlock()
	close(call.done)
	return call.err
}

func (m *Manager) doRefresh(ctx context.Context, returnPath string) error {
	var resp domain.AuthResponse
	if err := m.gw.PostJSON(ctx, "auth/refresh", struct{}{}, &resp); err != nil {
		details := apperrors.Classify(err)
		if details.StatusCode == 401 {
			m.end(ctx, ReasonUnauthorized, returnPath)
		}
		return m.fail(ctx, "refresh token", err)
	}
	if err := m.establish(ctx, resp); err != nil {
		m.end(ctx, ReasonInvalidToken, returnPath)
		return m.fail(ctx, "refresh token", err)
	}
	metrics.RecordSessionEvent("refresh")
	m.logger.WithContext(ctx).Debug("token refreshed")
	return nil
}

// establish validates resp, persists the token and switches to authenticated.
func (m *Manager) establish(ctx context.Context, resp domain.AuthResponse) error {
	id, err := DecodeToken(resp.AccessToken)
	if err != nil {
		return err
	}
	now := m.clock.Now()
	if id.Expiry.IsZero() && resp.ExpiresIn > 0 {
		id.Expiry = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if id.Expiry.IsZero() {
		return fmt.Errorf("session: token has no expiry: %w", apperrors.ErrInvalidToken)
	}
	if !id.Expiry.After(now) {
		return fmt.Errorf("session: token already expired: %w", apperrors.ErrInvalidToken)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.kv.Set(ctx, KeyToken, resp.AccessToken); err != nil {
		return fmt.Errorf("session: persist token: %w", err)
	}
	if err := m.kv.Set(ctx, KeyExpiry, strconv.FormatInt(id.Expiry.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("session: persist expiry: %w", err)
	}
	m.activateLocked(resp.AccessToken, id)
	return nil
}

// activateLocked schedules auto-logout and publishes the authenticated state.
func (m *Manager) activateLocked(token string, id Identity) {
	m.stopTimerLocked()
	m.generation++
	gen := m.generation
	delay := id.Expiry.Sub(m.clock.Now())
	m.timer = m.clock.AfterFunc(delay, func() { m.expire(gen) })

	m.state.Update(func(s *Snapshot) {
		s.Data.Authenticated = true
		s.Data.Token = token
		s.Data.Expiry = id.Expiry
		s.Data.User = domain.User{
			ID:       id.UserID,
			Email:    id.Email,
			FullName: id.FullName,
			Role:     id.Role,
		}
		s.Loaded = true
		s.IsLoading = false
		s.Err = nil
	})
}

func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	ended, hooks := m.endLocked(context.Background())
	m.mu.Unlock()
	if ended {
		m.afterEnd(context.Background(), ReasonExpired, "", hooks)
	}
}

func (m *Manager) end(ctx context.Context, reason Reason, returnPath string) {
	m.mu.Lock()
	ended, hooks := m.endLocked(ctx)
	m.mu.Unlock()
	if ended {
		m.afterEnd(ctx, reason, returnPath, hooks)
	}
}

// endLocked clears the session. It reports whether an authenticated session
// actually ended and returns the hooks to run outside the lock.
func (m *Manager) endLocked(ctx context.Context) (bool, []LogoutHook) {
	m.stopTimerLocked()
	m.generation++

	was := m.state.Snapshot().Data.Authenticated
	m.clearPersisted(ctx)
	m.state.Update(func(s *Snapshot) {
		remember := s.Data.RememberMe
		s.Data = Session{RememberMe: remember}
		s.IsLoading = false
		s.IsProcessing = false
		s.Err = nil
	})
	if !was {
		return false, nil
	}
	return true, append([]LogoutHook(nil), m.hooks...)
}

func (m *Manager) afterEnd(ctx context.Context, reason Reason, returnPath string, hooks []LogoutHook) {
	metrics.RecordSessionEvent("logout_" + reason.String())
	m.logger.WithContext(ctx).WithFields(logrus.Fields{
		"reason":      reason.String(),
		"return_path": returnPath,
	}).Info("session ended")
	for _, h := range hooks {
		h(reason, returnPath)
	}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) clearPersisted(ctx context.Context) {
	if err := m.kv.Delete(ctx, KeyToken, KeyExpiry); err != nil {
		m.logger.WithContext(ctx).WithError(err).Warn("failed to clear persisted token")
	}
}

func (m *Manager) persistedExpiry(ctx context.Context) time.Time {
	raw, err := m.kv.Get(ctx, KeyExpiry)
	if err != nil {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (m *Manager) beginLoading() {
	m.state.Update(func(s *Snapshot) { s.IsLoading = true; s.Err = nil })
}

// fail records and surfaces a classified error and returns it.
func (m *Manager) fail(ctx context.Context, op string, err error) error {
	details := apperrors.Classify(err).WithOp(op)
	m.state.Update(func(s *Snapshot) {
		s.IsLoading = false
		s.IsProcessing = false
		s.Err = details
	})
	m.notifier.Error(details)
	m.logger.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
		"op":       op,
		"category": details.Category,
	}).Warn("session operation failed")
	return details
}
