package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/agrivia/accounts/internal/model"
	"github.com/agrivia/accounts/internal/store"
)

// Source identifies how an actor proved its identity.
type Source string

const (
	SourceToken   Source = "token"
	SourceSession Source = "session"
)

// Actor is an authenticated but not yet authorized caller.
type Actor struct {
	AccountID int64
	Source    Source
}

// Policy is what an actor's live account must satisfy.
type Policy struct {
	RequireActive bool
	RequireAdmin  bool

	// MissingAccount is returned when the actor's account no longer exists.
	MissingAccount error
}

var (
	policyUser         = Policy{RequireActive: true, MissingAccount: ErrUnauthorized}
	policyAdmin        = Policy{RequireActive: true, RequireAdmin: true, MissingAccount: ErrUnauthorized}
	policyAdminSession = Policy{RequireAdmin: true, MissingAccount: ErrForbidden}
)

// Guard authenticates requests and authorizes them against the current state
// of the account in the store. Token claims are never trusted for status or
// role.
type Guard struct {
	store    *store.Store
	tokens   *TokenService
	sessions *SessionStore
	logger   *slog.Logger
}

// NewGuard wires the guard to its collaborators.
func NewGuard(st *store.Store, tokens *TokenService, sessions *SessionStore, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: st, tokens: tokens, sessions: sessions, logger: logger}
}

// AuthenticatedUser accepts a bearer token whose account exists and is active.
func (g *Guard) AuthenticatedUser(ctx context.Context, token string) (*model.Account, error) {
	actor, err := g.fromToken(token)
	if err != nil {
		return nil, err
	}
	return g.authorize(ctx, actor, policyUser)
}

// AdminRequired is AuthenticatedUser plus the admin flag.
func (g *Guard) AdminRequired(ctx context.Context, token string) (*model.Account, error) {
	actor, err := g.fromToken(token)
	if err != nil {
		return nil, err
	}
	return g.authorize(ctx, actor, policyAdmin)
}

// AuthenticatedAdminSession accepts a session cookie whose account exists and
// is an admin. Account status is not consulted on this path.
func (g *Guard) AuthenticatedAdminSession(ctx context.Context, cookieValue string) (*model.Account, error) {
	if cookieValue == "" {
		return nil, ErrUnauthorized
	}
	accountID, err := g.sessions.Current(ctx, cookieValue)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			g.logger.Debug("session rejected", "reason", "no_session")
		}
		return nil, err
	}
	return g.authorize(ctx, Actor{AccountID: accountID, Source: SourceSession}, policyAdminSession)
}

func (g *Guard) fromToken(token string) (Actor, error) {
	if token == "" {
		return Actor{}, ErrUnauthorized
	}
	claims, err := g.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			g.logger.Info("token rejected", "reason", "expired")
		} else {
			g.logger.Warn("token rejected", "reason", "invalid")
		}
		return Actor{}, err
	}
	return Actor{AccountID: claims.AccountID, Source: SourceToken}, nil
}

// authorize is the single place an actor is checked against an account.
func (g *Guard) authorize(ctx context.Context, actor Actor, p Policy) (*model.Account, error) {
	acct, err := g.store.GetAccount(ctx, actor.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.deny(actor, "account_missing")
			return nil, p.MissingAccount
		}
		return nil, oops.Code("GUARD_ACCOUNT_LOOKUP_FAILED").With("account_id", actor.AccountID).Wrap(err)
	}
	if p.RequireActive && !acct.IsActive() {
		g.deny(actor, "status_"+string(acct.Status))
		return nil, ErrUnauthorized
	}
	if p.RequireAdmin && !acct.IsAdmin {
		g.deny(actor, "not_admin")
		return nil, ErrForbidden
	}
	return acct, nil
}

func (g *Guard) deny(actor Actor, reason string) {
	g.logger.Info("access denied",
		"account_id", actor.AccountID,
		"source", string(actor.Source),
		"reason", reason,
	)
}
