package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidTransition   = errors.New("transition not allowed from current status")
	ErrInvalidState        = errors.New("listing cannot be edited in its current status")
	ErrConflict            = errors.New("listing was changed concurrently")
	ErrNotFound            = errors.New("listing not found")
	ErrForbidden           = errors.New("listing belongs to another owner")
	ErrUnknownPackage      = errors.New("unknown package code")
	ErrSegmentMismatch     = errors.New("package segment does not match listing transaction type")
	ErrOpenSession         = errors.New("a checkout session is already open for this listing")
	ErrUpstreamUnavailable = errors.New("payment processor unavailable")
)

// ValidationError names the fields that stopped an operation. Missing is used by the
// submit check, Invalid by the structural check.
type ValidationError struct {
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("%v (%s)", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// MissingFieldsError reports an incomplete listing on submit.
func MissingFieldsError(fields []string) error {
	return &ValidationError{Missing: fields}
}

// InvalidFieldsError reports malformed input.
func InvalidFieldsError(fields ...string) error {
	return &ValidationError{Invalid: fields}
}
