// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrInvalidArgument,
				Message: "test message",
				Cause:   errors.New("underlying error"),
			},
			want: "invalid_argument: test message: underlying error",
		},
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrStorage,
				Message: "test message",
			},
			want: "storage: test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying error")
	err := NewInternalError("test message", cause)
	assert.Same(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)

	assert.Nil(t, NewInternalError("no cause", nil).Unwrap())
}

func TestIsHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"invalid argument", NewInvalidArgumentError("x", nil), IsInvalidArgument},
		{"configuration", NewConfigurationError("x", nil), IsConfiguration},
		{"storage", NewStorageError("x", nil), IsStorage},
		{"decryption", NewDecryptionError("x", nil), IsDecryption},
		{"validation", NewValidationError("x", nil), IsValidation},
		{"internal", NewInternalError("x", nil), IsInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)), "should match through wrapping")
			assert.False(t, tt.check(errors.New("plain")))
			assert.False(t, tt.check(nil))
		})
	}

	assert.False(t, IsDecryption(NewStorageError("x", nil)))
}
