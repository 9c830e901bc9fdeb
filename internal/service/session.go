package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/agrivia/accounts/internal/model"
	"github.com/agrivia/accounts/internal/store"
)

// SessionCookieName is the cookie carrying the admin web session.
const SessionCookieName = "agrivia_session"

const (
	DefaultSessionIdleTimeout = 30 * time.Minute
	DefaultSessionMaxLifetime = 12 * time.Hour

	sessionTokenBytes = 32
)

// SessionStore manages server-side admin web sessions. The client only ever
// holds a signed random token; the database keeps its SHA-256 hash.
type SessionStore struct {
	store       *store.Store
	secret      []byte
	idleTimeout time.Duration
	maxLifetime time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// SessionOptions configures a SessionStore. Zero durations select defaults.
type SessionOptions struct {
	Secret      string
	IdleTimeout time.Duration
	MaxLifetime time.Duration
	Logger      *slog.Logger
}

// NewSessionStore returns a session store persisting to st.
func NewSessionStore(st *store.Store, opts SessionOptions) *SessionStore {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultSessionIdleTimeout
	}
	if opts.MaxLifetime <= 0 {
		opts.MaxLifetime = DefaultSessionMaxLifetime
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SessionStore{
		store:       st,
		secret:      []byte(opts.Secret),
		idleTimeout: opts.IdleTimeout,
		maxLifetime: opts.MaxLifetime,
		now:         time.Now,
		logger:      opts.Logger,
	}
}

// MaxLifetime is the absolute session cap, used as the cookie Max-Age.
func (s *SessionStore) MaxLifetime() time.Duration {
	return s.maxLifetime
}

// Start creates a session for accountID and returns the cookie value.
func (s *SessionStore) Start(ctx context.Context, accountID int64) (string, *model.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", nil, err
	}

	now := s.now().UTC()
	sess := &model.Session{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		AccountID:  accountID,
		TokenHash:  hashSessionToken(token),
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.maxLifetime),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").With("account_id", accountID).Wrap(err)
	}
	return s.sign(token), sess, nil
}

// Current resolves a cookie value to the owning account ID and slides the
// idle window. Any failure to produce a live session is ErrUnauthorized.
func (s *SessionStore) Current(ctx context.Context, cookieValue string) (int64, error) {
	token, ok := s.verify(cookieValue)
	if !ok {
		return 0, ErrUnauthorized
	}

	sess, err := s.store.GetSessionByTokenHash(ctx, hashSessionToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrUnauthorized
		}
		return 0, oops.Code("SESSION_LOOKUP_FAILED").Wrap(err)
	}

	now := s.now().UTC()
	if sess.ExpiredAt(now, s.idleTimeout) {
		if err := s.store.DeleteSession(ctx, sess.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to delete expired session", "session_id", sess.ID, "error", err)
		}
		return 0, ErrUnauthorized
	}

	if err := s.store.TouchSession(ctx, sess.ID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrUnauthorized
		}
		return 0, oops.Code("SESSION_TOUCH_FAILED").Wrap(err)
	}
	return sess.AccountID, nil
}

// End destroys the session named by cookieValue. Ending an unknown or
// already-ended session is not an error.
func (s *SessionStore) End(ctx context.Context, cookieValue string) error {
	token, ok := s.verify(cookieValue)
	if !ok {
		return nil
	}
	sess, err := s.store.GetSessionByTokenHash(ctx, hashSessionToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return oops.Code("SESSION_LOOKUP_FAILED").Wrap(err)
	}
	if err := s.store.DeleteSession(ctx, sess.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	return nil
}

// EndAll destroys every session of an account.
func (s *SessionStore) EndAll(ctx context.Context, accountID int64) error {
	if _, err := s.store.DeleteAccountSessions(ctx, accountID); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("account_id", accountID).Wrap(err)
	}
	return nil
}

// Sweep deletes expired and idle sessions, returning how many were removed.
func (s *SessionStore) Sweep(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	n, err := s.store.DeleteExpiredSessions(ctx, now, now.Add(-s.idleTimeout))
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *SessionStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("session sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				s.logger.Debug("swept expired sessions", "count", n)
			}
		}
	}
}

func (s *SessionStore) sign(token string) string {
	return token + "." + s.mac(token)
}

// verify checks the cookie signature and returns the bare token.
func (s *SessionStore) verify(cookieValue string) (string, bool) {
	token, sig, ok := strings.Cut(cookieValue, ".")
	if !ok || token == "" || sig == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(s.mac(token))) {
		return "", false
	}
	return token, true
}

func (s *SessionStore) mac(token string) string {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}

func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
