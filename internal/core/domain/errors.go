package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation = errors.New("validation error")

	ErrAccountExists = errors.New("account already exists")
	ErrEmailTaken    = fmt.Errorf("email already registered: %w", ErrAccountExists)
	ErrUsernameTaken = fmt.Errorf("username already registered: %w", ErrAccountExists)

	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrEmailUnconfirmed   = errors.New("email address is not confirmed")

	ErrUnauthenticated = errors.New("could not validate credentials")
	ErrForbidden       = errors.New("insufficient permissions")
	ErrSelfTarget      = errors.New("operation not allowed on your own account")

	ErrInvalidConfirmationToken = errors.New("invalid confirmation token")
	ErrAlreadyConfirmed         = errors.New("email already confirmed")
	ErrConfirmationExpired      = errors.New("confirmation token expired")
	ErrRateLimited              = errors.New("confirmation recently sent, try again later")
	// ErrConfirmationCodeTaken is a store-level collision with another
	// account's live code. The service retries with a fresh code.
	ErrConfirmationCodeTaken = errors.New("confirmation code already in use")

	ErrInvalidCurrentPassword = errors.New("current password is incorrect")

	// ErrInvalidToken is returned for any session token that fails
	// signature, format, expiry or subject checks.
	ErrInvalidToken = errors.New("invalid token")
)

// ValidationError names the offending field and value, and the legal set when
// the field is enumerated.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
	Reason  string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Field)
	if e.Value != "" {
		fmt.Fprintf(&b, " %q", e.Value)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Allowed) > 0 {
		fmt.Fprintf(&b, " (allowed: %s)", strings.Join(e.Allowed, ", "))
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidValue builds a ValidationError for a value outside an enumeration.
func InvalidValue(field, value string, allowed []string) error {
	return &ValidationError{Field: field, Value: value, Allowed: allowed, Reason: "is not a valid value"}
}

// InvalidField builds a ValidationError with a free-form reason.
func InvalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
