package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLabel is matched by every InvalidLabelError
	ErrInvalidLabel = errors.New("label must be 0 or 1")

	// ErrNotFound is returned when a looked-up record does not exist
	ErrNotFound = errors.New("not found")
)

// ValidationError rejects malformed input before anything is written
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// InvalidLabelError is returned for any label outside {0, 1}
type InvalidLabelError struct {
	Label int
}

func (e *InvalidLabelError) Error() string {
	return fmt.Sprintf("invalid label %d: %s", e.Label, ErrInvalidLabel)
}

// Is lets errors.Is(err, ErrInvalidLabel) match
func (e *InvalidLabelError) Is(target error) bool {
	return target == ErrInvalidLabel
}

// InsufficientDataError aborts a training run that cannot be stratified
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return "insufficient training data: " + e.Reason
}

// CheckLabel validates a label value
func CheckLabel(label int) error {
	if label != 0 && label != 1 {
		return &InvalidLabelError{Label: label}
	}
	return nil
}
