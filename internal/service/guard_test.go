package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrivia/accounts/internal/model"
)

func (e *testEnv) issue(t *testing.T, a *model.Account) string {
	t.Helper()
	token, _, err := e.tokens.Issue(a.ID, a.Email, a.Status)
	require.NoError(t, err)
	return token
}

func TestAuthenticatedUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedAccount(t, "user@example.com", model.StatusActive, false)
	token := env.issue(t, user)

	got, err := env.guard.AuthenticatedUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = env.guard.AuthenticatedUser(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.guard.AuthenticatedUser(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticatedUserFollowsLiveStatus(t *testing.T) {
	for _, status := range []model.Status{model.StatusBlocked, model.StatusInactive, model.StatusTrial} {
		t.Run(string(status), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			user := env.seedAccount(t, "user@example.com", model.StatusActive, false)
			token := env.issue(t, user)

			env.setStatus(t, user.ID, status)
			_, err := env.guard.AuthenticatedUser(ctx, token)
			assert.ErrorIs(t, err, ErrUnauthorized)

			// Reactivating restores access with the same token.
			env.setStatus(t, user.ID, model.StatusActive)
			_, err = env.guard.AuthenticatedUser(ctx, token)
			assert.NoError(t, err)
		})
	}
}

func TestAuthenticatedUserMissingAccount(t *testing.T) {
	env := newTestEnv(t)
	token, _, err := env.tokens.Issue(404, "ghost@example.com", model.StatusActive)
	require.NoError(t, err)

	_, err = env.guard.AuthenticatedUser(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestAuthenticatedUserExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedAccount(t, "user@example.com", model.StatusActive, false)
	token := env.issue(t, user)

	env.clock.Advance(8 * 24 * time.Hour)
	_, err := env.guard.AuthenticatedUser(context.Background(), token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdminRequired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin@example.com", model.StatusActive, true)
	user := env.seedAccount(t, "user@example.com", model.StatusActive, false)

	got, err := env.guard.AdminRequired(ctx, env.issue(t, admin))
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)

	_, err = env.guard.AdminRequired(ctx, env.issue(t, user))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.guard.AdminRequired(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Status is checked before the admin flag.
	adminToken := env.issue(t, admin)
	env.setStatus(t, admin.ID, model.StatusBlocked)
	_, err = env.guard.AdminRequired(ctx, adminToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdminRequiredSeesDemotion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin@example.com", model.StatusActive, true)
	token := env.issue(t, admin)

	_, err := env.accounts.SetAdmin(ctx, admin.Email, false)
	require.NoError(t, err)

	_, err = env.guard.AdminRequired(ctx, token)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthenticatedAdminSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin@example.com", model.StatusActive, true)
	user := env.seedAccount(t, "user@example.com", model.StatusActive, false)

	adminCookie, _, err := env.sessions.Start(ctx, admin.ID)
	require.NoError(t, err)
	userCookie, _, err := env.sessions.Start(ctx, user.ID)
	require.NoError(t, err)

	got, err := env.guard.AuthenticatedAdminSession(ctx, adminCookie)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)

	_, err = env.guard.AuthenticatedAdminSession(ctx, userCookie)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.guard.AuthenticatedAdminSession(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.guard.AuthenticatedAdminSession(ctx, "forged.cookie")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdminSessionIgnoresStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin@example.com", model.StatusActive, true)

	cookie, _, err := env.sessions.Start(ctx, admin.ID)
	require.NoError(t, err)
	env.setStatus(t, admin.ID, model.StatusBlocked)

	_, err = env.guard.AuthenticatedAdminSession(ctx, cookie)
	assert.NoError(t, err)
}

func TestAdminSessionSeesDemotion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin@example.com", model.StatusActive, true)

	cookie, _, err := env.sessions.Start(ctx, admin.ID)
	require.NoError(t, err)

	_, err = env.accounts.SetAdmin(ctx, admin.Email, false)
	require.NoError(t, err)

	_, err = env.guard.AuthenticatedAdminSession(ctx, cookie)
	assert.ErrorIs(t, err, ErrForbidden)
}
