package service

import (
	"errors"
	"fmt"

	"github.com/agrivia/accounts/internal/model"
)

var (
	// ErrInvalidCredentials is returned by login for an unknown email and for
	// a wrong password alike, so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized means the request carries no usable identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken is a malformed, tampered or incomplete bearer token.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthorized)

	// ErrExpiredToken is a well-formed, correctly signed token past its expiry.
	ErrExpiredToken = fmt.Errorf("%w: token expired", ErrUnauthorized)

	// ErrForbidden means the identity is valid but lacks the required role
	// or account status.
	ErrForbidden = errors.New("forbidden")

	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
	ErrPasswordTooLong = fmt.Errorf("password cannot exceed %d bytes", MaxPasswordBytes)

	// ErrValidation wraps input problems that are not covered by a more
	// specific error.
	ErrValidation = errors.New("validation failed")
)

// StatusError rejects a login whose credentials are correct but whose
// account is not active. It matches ErrForbidden under errors.Is.
type StatusError struct {
	Status model.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Account %s. Contact support.", e.Status)
}

func (e *StatusError) Unwrap() error {
	return ErrForbidden
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
