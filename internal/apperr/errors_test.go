package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageError(t *testing.T) {
	cause := errors.New("connection refused")
	err := Storage("consume", "key-1", cause)

	assert.True(t, IsStorage(err))
	assert.False(t, IsNotFound(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "consume")
	assert.Contains(t, err.Error(), "key-1")

	wrapped := fmt.Errorf("outer: %w", err)
	var se *StorageError
	assert.True(t, errors.As(wrapped, &se))
	assert.Equal(t, "consume", se.Op)
}

func TestStorage_Nil(t *testing.T) {
	assert.NoError(t, Storage("noop", "", nil))
}

func TestQuotaExceededError(t *testing.T) {
	err := fmt.Errorf("guard: %w", &QuotaExceededError{Remaining: 0, Limit: 1000})

	assert.ErrorIs(t, err, ErrQuotaExceeded)
	var qe *QuotaExceededError
	assert.True(t, errors.As(err, &qe))
	assert.Equal(t, 1000, qe.Limit)
}

func TestValidationError(t *testing.T) {
	err := Validation("name", "must not be empty")
	assert.True(t, IsValidation(err))
	assert.False(t, IsValidation(ErrNotFound))
	assert.Equal(t, "keyhub: validation failed for name: must not be empty", err.Error())
}

func TestNotFoundIsNotStorage(t *testing.T) {
	err := fmt.Errorf("lookup: %w", ErrNotFound)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsStorage(err))
}
