package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_AfterFunc(t *testing.T) {
	start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	var fired []string
	c.AfterFunc(2*time.Minute, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Minute, func() { fired = append(fired, "a") })
	stopped := c.AfterFunc(30*time.Second, func() { fired = append(fired, "x") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	c.Advance(90 * time.Second)
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, 1, c.PendingTimers())

	c.Advance(time.Minute)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, []time.Duration{2 * time.Minute, time.Minute, 30 * time.Second}, c.Delays())
	assert.Equal(t, start.Add(150*time.Second), c.Now())
}

func TestFakeClock_Sleep(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))
	require.NoError(t, c.Sleep(context.Background(), time.Second))
	assert.Equal(t, []time.Duration{time.Second}, c.Sleeps())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Sleep(ctx, time.Second), context.Canceled)
}

func TestMintToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := MintToken(TokenClaims{UserID: 4, Email: "a@b.com", FullName: "Ada", Role: "USER", Expiry: exp})

	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", claims["sub"])
	got, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.Equal(t, exp.Unix(), got.Unix())

	noExp := MintToken(TokenClaims{Email: "a@b.com"})
	claims = jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(noExp, claims)
	require.NoError(t, err)
	_, present := claims["exp"]
	assert.False(t, present)
}
