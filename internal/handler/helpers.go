package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agrivia/accounts/internal/model"
	"github.com/agrivia/accounts/internal/service"
	"github.com/agrivia/accounts/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope.
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeServiceError maps err to a status with statusFor and writes it.
func writeServiceError(w http.ResponseWriter, err error) {
	code, msg := statusFor(err)
	writeError(w, code, msg)
}

// readJSON decodes the request body as JSON into v. Unknown fields are
// rejected and the body is closed after decoding.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// statusFor maps service and store errors to an HTTP status and a client
// message. Unexpected errors become a generic 500; their detail is logged,
// never returned.
func statusFor(err error) (int, string) {
	var statusErr *service.StatusError
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.As(err, &statusErr):
		return http.StatusForbidden, statusErr.Error()
	case errors.Is(err, service.ErrExpiredToken):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Admin access required"
	case errors.Is(err, model.ErrInvalidStatus):
		return http.StatusBadRequest, "Invalid status"
	case errors.Is(err, service.ErrEmptyPassword):
		return http.StatusBadRequest, service.ErrEmptyPassword.Error()
	case errors.Is(err, service.ErrPasswordTooLong):
		return http.StatusBadRequest, service.ErrPasswordTooLong.Error()
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Account not found"
	case errors.Is(err, store.ErrDuplicateEmail):
		return http.StatusConflict, "Email already registered"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
