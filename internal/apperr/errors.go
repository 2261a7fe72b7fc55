package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure kinds callers branch on.
var (
	ErrNotFound      = errors.New("keyhub: not found")
	ErrUnauthorized  = errors.New("keyhub: unauthorized")
	ErrQuotaExceeded = errors.New("keyhub: quota exceeded")
	ErrStorage       = errors.New("keyhub: storage failure")
	ErrIntegrity     = errors.New("keyhub: integrity violation")
)

// ValidationError represents malformed input rejected before storage is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("keyhub: validation failed for %s: %s", e.Field, e.Message)
}

// QuotaExceededError carries the numbers a client needs for backoff.
type QuotaExceededError struct {
	Remaining int
	Limit     int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("keyhub: quota exceeded (%d of %d remaining)", e.Remaining, e.Limit)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// StorageError wraps a backend failure with the operation that hit it.
type StorageError struct {
	Op    string
	KeyID string
	Err   error
}

func (e *StorageError) Error() string {
	if e.KeyID != "" {
		return fmt.Sprintf("keyhub: storage failure in %s (key %s): %v", e.Op, e.KeyID, e.Err)
	}
	return fmt.Sprintf("keyhub: storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Storage wraps err as a StorageError. It returns nil for a nil err.
func Storage(op, keyID string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, KeyID: keyID, Err: err}
}

// Validation returns a ValidationError for field.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorage reports whether err is a backend failure.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
