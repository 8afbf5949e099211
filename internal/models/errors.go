// -----------------------------------------------------------------------
// Error taxonomy for the submission pipeline
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"fmt"
)

// ErrUserNotRegistered indicates the submitting user has no validation-user
// record. Non-retryable: the batch is marked failed and the sweeper never
// re-selects it.
var ErrUserNotRegistered = errors.New("submitting user is not registered")

// ValidationError reports a malformed batch creation request. It is returned
// synchronously to the caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for the given field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SubmissionError wraps any failure handing a batch to the automation engine:
// authentication failures, validation rejections and transport/timeouts all
// collapse into this one type because the recovery action is identical for
// all of them (roll back tracking records, mark the batch failed, retry later).
type SubmissionError struct {
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submission failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("submission failed: %s", e.Reason)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// NewSubmissionError wraps err as a retryable submission failure
func NewSubmissionError(reason string, err error) *SubmissionError {
	return &SubmissionError{Reason: reason, Err: err}
}

// IsSubmissionError reports whether err is (or wraps) a SubmissionError
func IsSubmissionError(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se)
}
