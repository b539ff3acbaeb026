package service

import (
	"errors"
	"fmt"
)

var (
	ErrConflict           = errors.New("account already exists")
	ErrNotFound           = errors.New("not found")
	ErrOTPExpired         = errors.New("otp expired")
	ErrOTPMismatch        = errors.New("otp invalid")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrValidation         = errors.New("validation failed")
	ErrDispatchFailed     = errors.New("email send failed")
	ErrTransient          = errors.New("temporarily unavailable")
)

// transient envuelve fallas de colaboradores (store, timeouts) sin perder la causa.
func transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func validationError(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
