package utils

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAppErrorRecordsCaller(t *testing.T) {
	err := NewAppError(ErrCodeDatabase, "Failed to persist events", "disk full")

	assert.Equal(t, "errors_test.go", filepath.Base(err.File))
	assert.Positive(t, err.Line)
	assert.Equal(t, "DATABASE_ERROR: Failed to persist events (disk full)", err.Error())
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(NewAppError(ErrCodeValidation, "bad"), ErrCodeValidation))
	assert.False(t, HasCode(NewAppError(ErrCodeValidation, "bad"), ErrCodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeValidation))
	assert.False(t, HasCode(fmt.Errorf("wrapped: %w", NewAppError(ErrCodeValidation, "bad")), ErrCodeValidation))
}
