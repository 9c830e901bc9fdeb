package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/samber/oops"

	"github.com/agrivia/accounts/internal/model"
	"github.com/agrivia/accounts/internal/service"
	"github.com/agrivia/accounts/internal/store"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"invalid credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
		{"status refused", &service.StatusError{Status: model.StatusBlocked}, http.StatusForbidden, "Account blocked. Contact support."},
		{"wrapped status refused", fmt.Errorf("login: %w", &service.StatusError{Status: model.StatusTrial}), http.StatusForbidden, "Account trial. Contact support."},
		{"expired token", service.ErrExpiredToken, http.StatusUnauthorized, "Token expired"},
		{"invalid token", service.ErrInvalidToken, http.StatusUnauthorized, "Unauthorized"},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, "Admin access required"},
		{"invalid status", model.ErrInvalidStatus, http.StatusBadRequest, "Invalid status"},
		{"status outside policy", oops.Code("STATUS_NOT_ALLOWED").Wrapf(model.ErrInvalidStatus, "status %q not allowed here", "trial"), http.StatusBadRequest, "Invalid status"},
		{"empty password", service.ErrEmptyPassword, http.StatusBadRequest, "password cannot be empty"},
		{"password too long", service.ErrPasswordTooLong, http.StatusBadRequest, "password cannot exceed 72 bytes"},
		{"not found", store.ErrNotFound, http.StatusNotFound, "Account not found"},
		{"duplicate email", store.ErrDuplicateEmail, http.StatusConflict, "Email already registered"},
		{"unexpected", oops.Code("ACCOUNT_LIST_FAILED").Wrap(errors.New("disk on fire")), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := statusFor(tt.err)
			if code != tt.code {
				t.Errorf("code = %d, want %d", code, tt.code)
			}
			if msg != tt.message {
				t.Errorf("message = %q, want %q", msg, tt.message)
			}
		})
	}
}

func TestStatusForValidationKeepsDetail(t *testing.T) {
	err := fmt.Errorf("%w: name is required", service.ErrValidation)

	code, msg := statusFor(err)
	if code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", code)
	}
	if !strings.Contains(msg, "name is required") {
		t.Errorf("message = %q", msg)
	}
}

func TestWriteServiceErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(rr, errors.New("pq: connection refused to 10.0.0.5"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "10.0.0.5") {
		t.Errorf("internal detail leaked: %s", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"status":"active","extra":1}`))
	var v statusRequest
	if err := readJSON(httptest.NewRecorder(), req, &v); err == nil {
		t.Error("expected error for unknown field")
	}
}
