// Package testutil provides common testing utilities: a controllable clock,
// and JWT minting for fake backends.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/payflow/internal/clock"
)

// =============================================================================
// Fake clock
// =============================================================================

// FakeClock is a manually advanced clock.Clock. Sleep returns immediately and
// advances the clock by the requested duration.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	delays []time.Duration
	sleeps []time.Duration
}

type fakeTimer struct {
	clock   *FakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewFakeClock creates a clock frozen at now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

var _ clock.Clock = (*FakeClock)(nil)

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run when the clock is advanced past now+d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

// Sleep records d and advances the clock without blocking.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	c.Advance(d)
	return nil
}

// Advance moves the clock forward and runs every due timer in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// Delays returns the durations passed to AfterFunc, in call order.
func (c *FakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// Sleeps returns the durations passed to Sleep, in call order.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// PendingTimers counts timers that have neither fired nor been stopped.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// =============================================================================
// Tokens
// =============================================================================

// TokenSigningKey signs tokens minted by MintToken. Clients never verify it.
var TokenSigningKey = []byte("payflow-test-signing-key")

// TokenClaims are the claims the backend puts in access tokens.
type TokenClaims struct {
	UserID   int64
	Email    string
	FullName string
	Role     string
	Expiry   time.Time
}

// MintToken returns an HS256 JWT carrying c. A zero Expiry omits "exp".
func MintToken(c TokenClaims) string {
	claims := jwt.MapClaims{
		"id":       c.UserID,
		"sub":      c.Email,
		"fullName": c.FullName,
		"role":     c.Role,
	}
	if !c.Expiry.IsZero() {
		claims["exp"] = c.Expiry.Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(TokenSigningKey)
	if err != nil {
		panic("testutil: sign token: " + err.Error())
	}
	return signed
}
