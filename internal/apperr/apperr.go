// Package apperr holds the error kinds shared by the store, the services and
// the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrDuplicateUser    = errors.New("user already exists")
	ErrInvalidReference = errors.New("unknown sender or recipient")
	ErrUnknownUser      = errors.New("unknown user")
	ErrNotFound         = errors.New("not found")
	ErrStoreFailure     = errors.New("store failure")
	ErrLoginFailed      = errors.New("login failed")
)

// Validation reports a missing or empty required field.
func Validation(field string) error {
	return fmt.Errorf("%w: %s is required", ErrValidation, field)
}

// Store wraps an underlying driver error so callers can match ErrStoreFailure
// while the cause stays available for logging.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storeError{op: op, err: err}
}

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreFailure, e.op, e.err)
}

func (e *storeError) Is(target error) bool {
	return target == ErrStoreFailure
}

func (e *storeError) Unwrap() error {
	return e.err
}
