package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrivia/accounts/internal/model"
	"github.com/agrivia/accounts/internal/store"
)

func TestSessionStartAndCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin@example.com", model.StatusActive, true)

	cookie, sess, err := env.sessions.Start(ctx, admin.ID)
	require.NoError(t, err)
	assert.Len(t, sess.ID, 26)
	assert.True(t, sess.ExpiresAt.Equal(env.clock.Now().Add(DefaultSessionMaxLifetime)))
	assert.NotContains(t, cookie, sess.TokenHash)

	id, err := env.sessions.Current(ctx, cookie)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, id)
}

func TestSessionRejectsBadCookies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin@example.com", model.StatusActive, true)

	cookie, _, err := env.sessions.Start(ctx, admin.ID)
	require.NoError(t, err)
	token, sig, _ := strings.Cut(cookie, ".")

	foreign := NewSessionStore(env.store, SessionOptions{Secret: "another-session-secret-0123456789abcdef"})
	forged := foreign.sign("attacker-chosen-token")

	for name, value := range map[string]string{
		"empty":          "",
		"no signature":   token,
		"bad signature":  token + "." + sig + "x",
		"swapped token":  "AAAA" + token[4:] + "." + sig,
		"foreign secret": forged,
		"unknown token":  env.sessions.sign("never-issued"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.sessions.Current(ctx, value)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestSessionIdleTimeoutSlides(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin@example.com", model.StatusActive, true)

	cookie, _, err := env.sessions.Start(ctx, admin.ID)
	require.NoError(t, err)

	// Activity every 20 minutes keeps the session alive past 30 minutes.
	for i := 0; i < 3; i++ {
		env.clock.Advance(20 * time.Minute)
		_, err := env.sessions.Current(ctx, cookie)
		require.NoError(t, err, "touch %d", i)
	}

	env.clock.Advance(31 * time.Minute)
	_, err = env.sessions.Current(ctx, cookie)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// The expired row is gone, so rewinding does not revive it.
	env.clock.Advance(-31 * time.Minute)
	_, err = env.sessions.Current(ctx, cookie)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSessionAbsoluteLifetime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin@example.com", model.StatusActive, true)

	cookie, _, err := env.sessions.Start(ctx, admin.ID)
	require.NoError(t, err)

	steps := int(DefaultSessionMaxLifetime/(20*time.Minute)) - 1
	for i := 0; i < steps; i++ {
		env.clock.Advance(20 * time.Minute)
		_, err := env.sessions.Current(ctx, cookie)
		require.NoError(t, err, "touch %d", i)
	}

	env.clock.Advance(20 * time.Minute)
	_, err = env.sessions.Current(ctx, cookie)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSessionEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin@example.com", model.StatusActive, true)

	cookie, sess, err := env.sessions.Start(ctx, admin.ID)
	require.NoError(t, err)

	require.NoError(t, env.sessions.End(ctx, cookie))
	_, err = env.sessions.Current(ctx, cookie)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.store.GetSessionByTokenHash(ctx, sess.TokenHash)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Idempotent, and garbage is ignored.
	assert.NoError(t, env.sessions.End(ctx, cookie))
	assert.NoError(t, env.sessions.End(ctx, "garbage"))
}

func TestSessionEndAllAndSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.seedAccount(t, "a@example.com", model.StatusActive, true)
	b := env.seedAccount(t, "b@example.com", model.StatusActive, true)

	ca1, _, err := env.sessions.Start(ctx, a.ID)
	require.NoError(t, err)
	ca2, _, err := env.sessions.Start(ctx, a.ID)
	require.NoError(t, err)
	cb, _, err := env.sessions.Start(ctx, b.ID)
	require.NoError(t, err)

	require.NoError(t, env.sessions.EndAll(ctx, a.ID))
	for _, c := range []string{ca1, ca2} {
		_, err := env.sessions.Current(ctx, c)
		assert.ErrorIs(t, err, ErrUnauthorized)
	}
	_, err = env.sessions.Current(ctx, cb)
	require.NoError(t, err)

	n, err := env.sessions.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.clock.Advance(DefaultSessionIdleTimeout + time.Second)
	n, err = env.sessions.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.sessions.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
