package config

import (
	"errors"
	"fmt"
)

// ConfigError represents a failure to locate, parse, or validate a
// configuration file. Includes structured fields for diagnostics.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Path is the configuration file involved, if known.
	Path string

	// Message is a human-readable description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeConfigNotFound indicates the configuration file does not exist.
	ErrCodeConfigNotFound ConfigErrorCode = "CONFIG_NOT_FOUND"

	// ErrCodeUnknownExtension indicates the file extension maps to no
	// supported format.
	ErrCodeUnknownExtension ConfigErrorCode = "UNKNOWN_EXTENSION"

	// ErrCodeInvalidConfig indicates the file parsed but failed validation,
	// or could not be parsed at all.
	ErrCodeInvalidConfig ConfigErrorCode = "INVALID_CONFIG"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path=%s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error is a missing-configuration error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeConfigNotFound
	}
	return false
}

// IsUnknownExtension returns true if the error is an unsupported-extension error.
func IsUnknownExtension(err error) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeUnknownExtension
	}
	return false
}
