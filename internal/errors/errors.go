package errors

import (
	"errors"
	"fmt"

	"glyphscore/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context, keeping the most specific code
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    CodeFor(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// CodeFor classifies an error by the domain sentinel it wraps
func CodeFor(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != CodeInternalError {
		return appErr.Code
	}
	switch {
	case core.IsConfigError(err):
		return CodeConfigInvalid
	case core.IsMissingColumnError(err):
		return CodeMissingColumn
	case core.IsInsufficientDataError(err):
		return CodeInsufficientData
	case core.IsDegenerateStatisticError(err):
		return CodeDegenerateStatistic
	default:
		return CodeInternalError
	}
}

// ExitCode maps an error to a process exit status for batch callers
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch CodeFor(err) {
	case CodeConfigInvalid:
		return 2
	case CodeMissingColumn:
		return 3
	case CodeInsufficientData:
		return 4
	case CodeDegenerateStatistic:
		return 5
	case CodeIOError:
		return 6
	default:
		return 1
	}
}

// Predefined error codes
const (
	CodeConfigInvalid       = "CONFIG_INVALID"
	CodeMissingColumn       = "MISSING_COLUMN"
	CodeInsufficientData    = "INSUFFICIENT_DATA"
	CodeDegenerateStatistic = "DEGENERATE_STATISTIC"
	CodeIOError             = "IO_ERROR"
	CodeInternalError       = "INTERNAL_ERROR"
)

// IOError wraps a failure reading inputs or writing artifacts
func IOError(message string, cause error) *AppError {
	return &AppError{Code: CodeIOError, Message: message, Cause: cause}
}

// ConfigInvalid reports an invalid configuration value
func ConfigInvalid(message string) *AppError {
	return &AppError{Code: CodeConfigInvalid, Message: message, Cause: core.ErrConfig}
}
