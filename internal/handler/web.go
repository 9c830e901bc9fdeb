package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agrivia/accounts/internal/model"
	"github.com/agrivia/accounts/internal/server/middleware"
	"github.com/agrivia/accounts/internal/service"
	"github.com/agrivia/accounts/internal/telemetry"
	"github.com/agrivia/accounts/internal/ui"
)

const usersPath = "/admin/users"

// WebOptions configures the session cookie set by the console.
type WebOptions struct {
	SecureCookies bool
	SessionMaxAge time.Duration
}

// WebHandler serves the server-rendered admin console.
type WebHandler struct {
	accounts *service.AccountService
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	pages    map[string]*template.Template
	opts     WebOptions
	now      func() time.Time
}

// NewWebHandler parses the embedded templates and returns the console
// handler.
func NewWebHandler(accounts *service.AccountService, metrics *telemetry.Metrics, logger *slog.Logger, opts WebOptions) (*WebHandler, error) {
	pages, err := ui.Templates(template.FuncMap{
		"displayDate": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format("02/01/2006")
		},
		"inputDate": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format(model.DateLayout)
		},
	})
	if err != nil {
		return nil, err
	}
	return &WebHandler{
		accounts: accounts,
		metrics:  metrics,
		logger:   logger,
		pages:    pages,
		opts:     opts,
		now:      time.Now,
	}, nil
}

// pageData is shared by every console template; pages read the fields they
// need.
type pageData struct {
	Admin    *model.Account
	Error    string
	Email    string
	Accounts []model.AccountView
	Account  *model.Account
	Statuses []string
	Form     newUserForm
}

type newUserForm struct {
	Name    string
	Email   string
	Status  string
	IsAdmin bool
}

// LoginPage renders the login form.
// GET /admin/login
func (h *WebHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, ui.PageLogin, pageData{})
}

// Login checks credentials and starts a console session. Failures re-render
// the form with an inline message and no redirect.
// POST /admin/login
func (h *WebHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, ui.PageLogin, pageData{Error: "Invalid form submission"})
		return
	}
	email := r.PostForm.Get("email")

	cookie, _, err := h.accounts.LoginAdmin(r.Context(), email, r.PostForm.Get("senha"))
	h.metrics.AuthAttempt(telemetry.SurfaceWeb, loginOutcome(err))
	if err != nil {
		data := pageData{Email: email}
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			data.Error = "Invalid email or password"
		case errors.Is(err, service.ErrForbidden):
			data.Error = "Admin access required"
		default:
			h.logger.Error("console login failed", "error", err, "request_id", middleware.GetRequestID(r.Context()))
			h.render(w, r, http.StatusInternalServerError, ui.PageLogin, pageData{Email: email, Error: "Something went wrong. Try again."})
			return
		}
		h.render(w, r, http.StatusOK, ui.PageLogin, data)
		return
	}

	http.SetCookie(w, h.sessionCookie(cookie, int(h.opts.SessionMaxAge.Seconds())))
	http.Redirect(w, r, usersPath, http.StatusFound)
}

// Logout ends the console session and clears the cookie.
// GET|POST /admin/logout
func (h *WebHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(service.SessionCookieName); err == nil {
		if err := h.accounts.LogoutAdmin(r.Context(), c.Value); err != nil {
			h.logger.Warn("failed to end session", "error", err)
		}
	}
	http.SetCookie(w, h.sessionCookie("", -1))
	http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
}

// Users lists every account with its due-date classification.
// GET /admin/users
func (h *WebHandler) Users(w http.ResponseWriter, r *http.Request) {
	views, err := h.accounts.ListAccounts(r.Context(), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, ui.PageUsers, pageData{
		Accounts: views,
		Statuses: model.WebSettableStatuses.Strings(),
	})
}

// SetStatus changes an account's status. The console may only assign
// active or blocked.
// POST /admin/users/{id}/status
func (h *WebHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid account ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	if _, err := h.accounts.SetStatus(r.Context(), id, r.PostForm.Get("status"), model.WebSettableStatuses); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, usersPath, http.StatusFound)
}

// NewUserPage renders the account creation form.
// GET /admin/users/new
func (h *WebHandler) NewUserPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, ui.PageUserNew, pageData{
		Statuses: model.AllStatuses.Strings(),
		Form:     newUserForm{Status: string(model.StatusActive)},
	})
}

// CreateUser creates an account from the console form. Validation failures
// and duplicate emails re-render the form.
// POST /admin/users/new
func (h *WebHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	form := newUserForm{
		Name:    r.PostForm.Get("name"),
		Email:   r.PostForm.Get("email"),
		Status:  r.PostForm.Get("status"),
		IsAdmin: r.PostForm.Get("is_admin") != "",
	}

	_, err := h.accounts.CreateAccount(r.Context(), service.CreateAccountInput{
		Name:     form.Name,
		Email:    form.Email,
		Password: r.PostForm.Get("senha"),
		Status:   form.Status,
		IsAdmin:  form.IsAdmin,
	})
	if err != nil {
		code, msg := statusFor(err)
		if code == http.StatusInternalServerError {
			h.fail(w, r, err)
			return
		}
		h.render(w, r, http.StatusOK, ui.PageUserNew, pageData{
			Error:    msg,
			Statuses: model.AllStatuses.Strings(),
			Form:     form,
		})
		return
	}
	http.Redirect(w, r, usersPath, http.StatusFound)
}

// PasswordPage renders the password reset form.
// GET /admin/users/{id}/password
func (h *WebHandler) PasswordPage(w http.ResponseWriter, r *http.Request) {
	h.accountPage(w, r, ui.PagePassword)
}

// ResetPassword replaces an account's password.
// POST /admin/users/{id}/password
func (h *WebHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid account ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	if _, err := h.accounts.ResetPassword(r.Context(), id, r.PostForm.Get("nova_senha")); err != nil {
		var msg string
		switch {
		case errors.Is(err, service.ErrEmptyPassword):
			msg = "Password cannot be empty"
		case errors.Is(err, service.ErrPasswordTooLong):
			msg = fmt.Sprintf("Password cannot exceed %d bytes", service.MaxPasswordBytes)
		}
		if msg != "" {
			acct, gerr := h.accounts.GetAccount(r.Context(), id)
			if gerr != nil {
				h.fail(w, r, gerr)
				return
			}
			h.render(w, r, http.StatusOK, ui.PagePassword, pageData{Account: acct, Error: msg})
			return
		}
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, usersPath, http.StatusFound)
}

// DueDatePage renders the payment due date form.
// GET /admin/users/{id}/due-date
func (h *WebHandler) DueDatePage(w http.ResponseWriter, r *http.Request) {
	h.accountPage(w, r, ui.PageDueDate)
}

// SetDueDate sets the payment due date; an empty field clears it.
// POST /admin/users/{id}/due-date
func (h *WebHandler) SetDueDate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid account ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	var due *time.Time
	if raw := strings.TrimSpace(r.PostForm.Get("due_date")); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			http.Error(w, "Due date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		due = &d
	}

	if _, err := h.accounts.SetPaymentDueDate(r.Context(), id, due); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, usersPath, http.StatusFound)
}

func (h *WebHandler) accountPage(w http.ResponseWriter, r *http.Request, page string) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid account ID", http.StatusBadRequest)
		return
	}
	acct, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, page, pageData{Account: acct})
}

func (h *WebHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     service.SessionCookieName,
		Value:    value,
		Path:     "/admin",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

// render executes page into a buffer first so a template error never leaves
// a half-written response.
func (h *WebHandler) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	if data.Admin == nil {
		data.Admin = middleware.GetAccount(r.Context())
	}

	t, ok := h.pages[page]
	if !ok {
		h.logger.Error("unknown console page", "page", page)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		h.logger.Error("render failed", "page", page, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (h *WebHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("console request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
	}
	http.Error(w, msg, code)
}
