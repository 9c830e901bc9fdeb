package service

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrivia/accounts/internal/model"
)

func newTestTokens(clock *fakeClock) *TokenService {
	s := NewTokenService(testTokenSecret, 0)
	s.now = clock.Now
	return s
}

func TestTokenRoundTrip(t *testing.T) {
	clock := newFakeClock()
	s := newTestTokens(clock)

	token, expiresAt, err := s.Issue(42, "maria@example.com", model.StatusActive)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, clock.Now().Add(7*24*time.Hour), expiresAt)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.AccountID)
	assert.Equal(t, "maria@example.com", claims.Email())
	assert.Equal(t, model.StatusActive, claims.Status)
	assert.Equal(t, "agrivia", claims.Issuer)
	require.NotNil(t, claims.IssuedAt)
	assert.True(t, claims.IssuedAt.Time.Equal(clock.Now()))
}

func TestTokenExpiry(t *testing.T) {
	clock := newFakeClock()
	s := newTestTokens(clock)

	token, _, err := s.Issue(1, "a@example.com", model.StatusActive)
	require.NoError(t, err)

	clock.Advance(7*24*time.Hour - time.Minute)
	_, err = s.Validate(token)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = s.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejections(t *testing.T) {
	clock := newFakeClock()
	s := newTestTokens(clock)

	good, _, err := s.Issue(1, "a@example.com", model.StatusActive)
	require.NoError(t, err)
	other, _, err := s.Issue(2, "b@example.com", model.StatusActive)
	require.NoError(t, err)

	sign := func(method jwt.SigningMethod, key any, claims jwt.Claims) string {
		t.Helper()
		tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	now := clock.Now()
	registered := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   "a@example.com",
			Issuer:    "agrivia",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}
	}

	goodParts := strings.Split(good, ".")
	otherParts := strings.Split(other, ".")

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"swapped payload", goodParts[0] + "." + otherParts[1] + "." + goodParts[2]},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("some-other-secret-0123456789abcdef"),
			&TokenClaims{AccountID: 1, RegisteredClaims: registered()})},
		{"wrong algorithm", sign(jwt.SigningMethodHS512, []byte(testTokenSecret),
			&TokenClaims{AccountID: 1, RegisteredClaims: registered()})},
		{"alg none", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType,
			&TokenClaims{AccountID: 1, RegisteredClaims: registered()})},
		{"missing account id", sign(jwt.SigningMethodHS256, []byte(testTokenSecret),
			&TokenClaims{RegisteredClaims: registered()})},
		{"missing exp", sign(jwt.SigningMethodHS256, []byte(testTokenSecret),
			&TokenClaims{AccountID: 1, RegisteredClaims: jwt.RegisteredClaims{Subject: "a@example.com", Issuer: "agrivia"}})},
		{"foreign issuer", sign(jwt.SigningMethodHS256, []byte(testTokenSecret),
			&TokenClaims{AccountID: 1, RegisteredClaims: jwt.RegisteredClaims{
				Subject: "a@example.com", Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Validate(tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestTokenDoesNotCarryAuthority(t *testing.T) {
	s := newTestTokens(newFakeClock())

	// A token minted while blocked still validates; the guard decides.
	token, _, err := s.Issue(9, "x@example.com", model.StatusBlocked)
	require.NoError(t, err)
	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBlocked, claims.Status)
}
