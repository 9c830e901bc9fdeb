package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/agrivia/accounts/internal/model"
	"github.com/agrivia/accounts/internal/store"
)

// LoginResult is the outcome of a successful API login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *model.Account
}

// CreateAccountInput carries the fields of a new account. An empty Status
// means active.
type CreateAccountInput struct {
	Name           string
	Email          string
	Password       string
	Status         string
	IsAdmin        bool
	PaymentDueDate *time.Time
}

// AccountService implements login and the admin operations on accounts.
type AccountService struct {
	store    *store.Store
	hasher   PasswordHasher
	tokens   *TokenService
	sessions *SessionStore
	logger   *slog.Logger

	dummyHash func() string
}

// NewAccountService wires the account service to its collaborators.
func NewAccountService(st *store.Store, hasher PasswordHasher, tokens *TokenService, sessions *SessionStore, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		store:    st,
		hasher:   hasher,
		tokens:   tokens,
		sessions: sessions,
		logger:   logger,
		dummyHash: sync.OnceValue(func() string {
			h, err := hasher.Hash("agrivia-timing-equaliser")
			if err != nil {
				return ""
			}
			return h
		}),
	}
}

// Login checks credentials only. Unknown email and wrong password both yield
// ErrInvalidCredentials after a full hash comparison.
func (s *AccountService) Login(ctx context.Context, email, password string) (*model.Account, error) {
	email = strings.TrimSpace(email)

	acct, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, oops.Code("LOGIN_LOOKUP_FAILED").Wrap(err)
		}
		s.hasher.Verify(password, s.dummyHash())
		s.logger.Info("login failed", "reason", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if password == "" || !s.hasher.Verify(password, acct.PasswordHash) {
		s.logger.Info("login failed", "reason", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	return acct, nil
}

// LoginAPI logs in for the JSON API. Accounts that are not active are refused
// with a *StatusError naming the status; no token is issued for them.
func (s *AccountService) LoginAPI(ctx context.Context, email, password string) (*LoginResult, error) {
	acct, err := s.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive() {
		s.logger.Info("login refused", "account_id", acct.ID, "reason", "status_"+string(acct.Status))
		return nil, &StatusError{Status: acct.Status}
	}

	token, expiresAt, err := s.tokens.Issue(acct.ID, acct.Email, acct.Status)
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").With("account_id", acct.ID).Wrap(err)
	}
	s.logger.Info("login succeeded", "account_id", acct.ID, "surface", "api")
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Account: acct}, nil
}

// LoginAdmin logs in to the web console and starts a session. Only admins
// may log in there.
func (s *AccountService) LoginAdmin(ctx context.Context, email, password string) (string, *model.Account, error) {
	acct, err := s.Login(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	if !acct.IsAdmin {
		s.logger.Info("login refused", "account_id", acct.ID, "reason", "not_admin")
		return "", nil, ErrForbidden
	}

	cookie, _, err := s.sessions.Start(ctx, acct.ID)
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("login succeeded", "account_id", acct.ID, "surface", "web")
	return cookie, acct, nil
}

// LogoutAdmin ends the web session named by cookieValue.
func (s *AccountService) LogoutAdmin(ctx context.Context, cookieValue string) error {
	return s.sessions.End(ctx, cookieValue)
}

// CreateAccount validates and stores a new account. The store's unique
// constraint decides races; the lookup here only gives the common case a
// cheap answer.
func (s *AccountService) CreateAccount(ctx context.Context, in CreateAccountInput) (*model.Account, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" {
		return nil, validationf("name is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, validationf("a valid email is required")
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	status := model.StatusActive
	if strings.TrimSpace(in.Status) != "" {
		st, err := model.ParseStatus(in.Status)
		if err != nil {
			return nil, err
		}
		status = st
	}

	if _, err := s.store.GetAccountByEmail(ctx, email); err == nil {
		return nil, store.ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}

	acct := &model.Account{
		Name:           name,
		Email:          email,
		PasswordHash:   hash,
		Status:         status,
		IsAdmin:        in.IsAdmin,
		PaymentDueDate: normalizeDate(in.PaymentDueDate),
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").Wrap(err)
	}
	s.logger.Info("account created", "account_id", acct.ID, "status", string(acct.Status), "is_admin", acct.IsAdmin)
	return acct, nil
}

// SetStatus changes an account's status. raw is parsed and checked against
// allowed before anything is read or written.
func (s *AccountService) SetStatus(ctx context.Context, id int64, raw string, allowed model.StatusSet) (*model.Account, error) {
	status, err := model.ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	if !allowed.Allows(status) {
		return nil, oops.Code("STATUS_NOT_ALLOWED").With("status", string(status)).Wrapf(model.ErrInvalidStatus, "status %q not allowed here", status)
	}

	return s.update(ctx, id, func(a *model.Account) error {
		a.Status = status
		return nil
	})
}

// ResetPassword replaces an account's password and ends its web sessions.
func (s *AccountService) ResetPassword(ctx context.Context, id int64, password string) (*model.Account, error) {
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}

	acct, err := s.update(ctx, id, func(a *model.Account) error {
		a.PasswordHash = hash
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.sessions.EndAll(ctx, id); err != nil {
		s.logger.Warn("failed to end sessions after password reset", "account_id", id, "error", err)
	}
	return acct, nil
}

// SetPaymentDueDate sets or, with nil, clears the payment due date.
func (s *AccountService) SetPaymentDueDate(ctx context.Context, id int64, due *time.Time) (*model.Account, error) {
	due = normalizeDate(due)
	return s.update(ctx, id, func(a *model.Account) error {
		a.PaymentDueDate = due
		return nil
	})
}

// SetAdmin grants or revokes the admin flag of the account with email.
func (s *AccountService) SetAdmin(ctx context.Context, email string, admin bool) (*model.Account, error) {
	acct, err := s.store.GetAccountByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").Wrap(err)
	}
	return s.update(ctx, acct.ID, func(a *model.Account) error {
		a.IsAdmin = admin
		return nil
	})
}

// GetAccount returns one account.
func (s *AccountService) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	acct, err := s.store.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("account_id", id).Wrap(err)
	}
	return acct, nil
}

// ListAccounts returns every account with its due-date class as of today.
func (s *AccountService) ListAccounts(ctx context.Context, today time.Time) ([]model.AccountView, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").Wrap(err)
	}
	views := make([]model.AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, model.NewAccountView(a, today))
	}
	return views, nil
}

// HasAnyAdmin reports whether an admin account exists yet.
func (s *AccountService) HasAnyAdmin(ctx context.Context) (bool, error) {
	has, err := s.store.HasAnyAdmin(ctx)
	if err != nil {
		return false, oops.Code("ACCOUNT_LOOKUP_FAILED").Wrap(err)
	}
	return has, nil
}

// update loads, mutates and persists one account.
func (s *AccountService) update(ctx context.Context, id int64, mutate func(*model.Account) error) (*model.Account, error) {
	acct, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(acct); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAccount(ctx, acct); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", id).Wrap(err)
	}
	return acct, nil
}

// checkPassword rejects passwords the hasher would refuse, before any
// lookup or write.
func checkPassword(password string) error {
	switch {
	case password == "":
		return ErrEmptyPassword
	case len(password) > MaxPasswordBytes:
		return ErrPasswordTooLong
	}
	return nil
}

// normalizeDate drops the time of day, keeping the calendar date in UTC.
func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, d := t.Date()
	n := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &n
}
