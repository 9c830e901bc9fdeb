package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/agrivia/accounts/internal/model"
	"github.com/agrivia/accounts/internal/server/middleware"
	"github.com/agrivia/accounts/internal/service"
	"github.com/agrivia/accounts/internal/telemetry"
)

// APIHandler serves the JSON API: token login, the caller's own account and
// admin account management.
type APIHandler struct {
	accounts *service.AccountService
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewAPIHandler creates a new APIHandler. metrics may be nil.
func NewAPIHandler(accounts *service.AccountService, metrics *telemetry.Metrics, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		accounts: accounts,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

type loginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

type loginResponse struct {
	Success   bool         `json:"success"`
	Token     string       `json:"token"`
	Status    model.Status `json:"status"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Login exchanges email and password for a bearer token.
// POST /api/login
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.accounts.LoginAPI(r.Context(), req.Email, req.Senha)
	h.metrics.AuthAttempt(telemetry.SurfaceAPI, loginOutcome(err))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		Token:     res.Token,
		Status:    res.Account.Status,
		ExpiresAt: res.ExpiresAt,
	})
}

// Me returns the authenticated account.
// GET /api/me
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	acct := middleware.GetAccount(r.Context())
	if acct == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// ListAccounts returns every account with its due-date classification.
// GET /api/admin/users
func (h *APIHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	views, err := h.accounts.ListAccounts(r.Context(), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewListResponse(views))
}

type createAccountRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Status         string `json:"status"`
	IsAdmin        bool   `json:"is_admin"`
	PaymentDueDate string `json:"payment_due_date"`
}

// CreateAccount creates an account. Any status may be assigned here.
// POST /api/admin/users
func (h *APIHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in := service.CreateAccountInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Status:   req.Status,
		IsAdmin:  req.IsAdmin,
	}
	if req.PaymentDueDate != "" {
		due, err := model.ParseDate(req.PaymentDueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "payment_due_date must be YYYY-MM-DD")
			return
		}
		in.PaymentDueDate = &due
	}

	acct, err := h.accounts.CreateAccount(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetStatus changes an account's status to any value in the enumeration.
// PUT /api/admin/users/{id}/status
func (h *APIHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	var req statusRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acct, err := h.accounts.SetStatus(r.Context(), id, req.Status, model.AllStatuses)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type passwordRequest struct {
	Password string `json:"password"`
}

// ResetPassword replaces an account's password.
// PUT /api/admin/users/{id}/password
func (h *APIHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	var req passwordRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acct, err := h.accounts.ResetPassword(r.Context(), id, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type dueDateRequest struct {
	DueDate *string `json:"due_date"`
}

// SetDueDate sets the payment due date, or clears it when due_date is null
// or absent.
// PUT /api/admin/users/{id}/due-date
func (h *APIHandler) SetDueDate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	var req dueDateRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var due *time.Time
	if req.DueDate != nil && *req.DueDate != "" {
		d, err := model.ParseDate(*req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
			return
		}
		due = &d
	}

	acct, err := h.accounts.SetPaymentDueDate(r.Context(), id, due)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, _ := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
	}
	writeServiceError(w, err)
}

// loginOutcome classifies a login result for the auth attempt counter.
func loginOutcome(err error) string {
	var statusErr *service.StatusError
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case errors.Is(err, service.ErrInvalidCredentials):
		return telemetry.OutcomeInvalidCredentials
	case errors.As(err, &statusErr):
		return telemetry.OutcomeStatusRefused
	case errors.Is(err, service.ErrForbidden):
		return telemetry.OutcomeNotAdmin
	default:
		return telemetry.OutcomeError
	}
}
