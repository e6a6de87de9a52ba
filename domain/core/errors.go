package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error taxonomy for the scoring kernel
var (
	// ErrConfig marks a malformed rule or configuration value
	ErrConfig = errors.New("configuration error")

	// ErrMissingColumn marks a required input column that is absent
	ErrMissingColumn = errors.New("missing required column")

	// ErrInsufficientData marks an empty group, zero iterations requested,
	// or a cluster count exceeding the eligible points
	ErrInsufficientData = errors.New("insufficient data for analysis")

	// ErrDegenerateStatistic marks a statistic that is undefined, e.g. a z-score
	// against a null distribution with zero spread
	ErrDegenerateStatistic = errors.New("degenerate statistic")
)

// MissingColumnError reports which column a source is lacking
type MissingColumnError struct {
	Source string
	Column string
}

func (e *MissingColumnError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%s: %q", ErrMissingColumn, e.Column)
	}
	return fmt.Sprintf("%s: %q in %s", ErrMissingColumn, e.Column, e.Source)
}

func (e *MissingColumnError) Unwrap() error {
	return ErrMissingColumn
}

// Error constructors with context
func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConfig, field, reason)
}

func NewMissingColumnError(source, column string) error {
	return &MissingColumnError{Source: source, Column: column}
}

func NewInsufficientDataError(what string) error {
	return fmt.Errorf("%w: %s", ErrInsufficientData, what)
}

func NewDegenerateStatisticError(what string) error {
	return fmt.Errorf("%w: %s", ErrDegenerateStatistic, what)
}

// Error checking helpers
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}

func IsMissingColumnError(err error) bool {
	return errors.Is(err, ErrMissingColumn)
}

func IsInsufficientDataError(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

func IsDegenerateStatisticError(err error) bool {
	return errors.Is(err, ErrDegenerateStatistic)
}
