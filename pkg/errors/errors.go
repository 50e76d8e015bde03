// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the typed error used across mxcp-auth for failures
// that are not provider errors: bad configuration, storage faults, protocol
// validation failures and internal errors.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrInvalidArgument is returned when an invalid argument is provided
	ErrInvalidArgument = "invalid_argument"

	// ErrConfiguration is returned when configuration is missing or unsafe.
	// These are fatal at construction time.
	ErrConfiguration = "configuration"

	// ErrStorage is returned when the backing token store fails
	ErrStorage = "storage"

	// ErrDecryption is returned when a stored secret cannot be decrypted,
	// which indicates a key mismatch or corruption
	ErrDecryption = "decryption"

	// ErrValidation is returned for malformed or replayed protocol input
	// such as a missing code, an unknown state or a used authorization code
	ErrValidation = "validation"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string, cause error) *Error {
	return NewError(ErrInvalidArgument, message, cause)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrConfiguration, message, cause)
}

// NewStorageError creates a new storage error
func NewStorageError(message string, cause error) *Error {
	return NewError(ErrStorage, message, cause)
}

// NewDecryptionError creates a new decryption error
func NewDecryptionError(message string, cause error) *Error {
	return NewError(ErrDecryption, message, cause)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *Error {
	return NewError(ErrValidation, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// isType reports whether any error in err's chain is an *Error of the given type.
func isType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsInvalidArgument checks if the error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return isType(err, ErrInvalidArgument)
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool {
	return isType(err, ErrConfiguration)
}

// IsStorage checks if the error is a storage error
func IsStorage(err error) bool {
	return isType(err, ErrStorage)
}

// IsDecryption checks if the error is a decryption error
func IsDecryption(err error) bool {
	return isType(err, ErrDecryption)
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return isType(err, ErrValidation)
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return isType(err, ErrInternal)
}
