package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/agrivia/accounts/internal/model"
	"github.com/agrivia/accounts/internal/service"
)

type contextKeyAuth string

// AccountKey is the context key for the authorized account.
const AccountKey contextKeyAuth = "auth_account"

// LoginPath is where unauthenticated console page views are sent.
const LoginPath = "/admin/login"

// Guard is the subset of service.Guard the middleware needs.
type Guard interface {
	AuthenticatedUser(ctx context.Context, token string) (*model.Account, error)
	AdminRequired(ctx context.Context, token string) (*model.Account, error)
	AuthenticatedAdminSession(ctx context.Context, cookieValue string) (*model.Account, error)
}

// RequireUser admits requests carrying a bearer token of an active account.
func RequireUser(g Guard) func(http.Handler) http.Handler {
	return bearer(g.AuthenticatedUser)
}

// RequireAdmin admits requests carrying a bearer token of an active admin.
func RequireAdmin(g Guard) func(http.Handler) http.Handler {
	return bearer(g.AdminRequired)
}

func bearer(check func(context.Context, string) (*model.Account, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}

			acct, err := check(r.Context(), token)
			if err != nil {
				status, msg := authFailure(err)
				writeAuthError(w, status, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acct)))
		})
	}
}

// RequireAdminSession admits requests carrying the console session cookie of
// an admin. Unauthenticated page views (GET) are redirected to the login
// form; anything else gets a bare 401 or 403.
func RequireAdminSession(g Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var value string
			if c, err := r.Cookie(service.SessionCookieName); err == nil {
				value = c.Value
			}

			acct, err := g.AuthenticatedAdminSession(r.Context(), value)
			if err != nil {
				status, msg := authFailure(err)
				if status == http.StatusUnauthorized && r.Method == http.MethodGet {
					http.Redirect(w, r, LoginPath, http.StatusFound)
					return
				}
				http.Error(w, msg, status)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acct)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithAccount attaches the authorized account to ctx.
func WithAccount(ctx context.Context, acct *model.Account) context.Context {
	return context.WithValue(ctx, AccountKey, acct)
}

// GetAccount extracts the authorized account from the context. Returns nil
// if the request was not authorized.
func GetAccount(ctx context.Context) *model.Account {
	if a, ok := ctx.Value(AccountKey).(*model.Account); ok {
		return a
	}
	return nil
}

func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrExpiredToken):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Admin access required"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="agrivia"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
