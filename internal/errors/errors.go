/*
Copyright 2026 The Forge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errors defines the structured error kinds used across the
// analysis-to-application pipeline. Every terminal failure carries a kind
// tag, a human message, and (via Recommendation) a one-line recommendation.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// As delegates to the standard library's errors.As so callers of this
// package never need a second import for it.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// ErrorType tags an AppError with one of the pipeline's error kinds.
type ErrorType string

const (
	ErrorTypeInputInvalid         ErrorType = "input_invalid"
	ErrorTypeNoFailureDetected    ErrorType = "no_failure_detected"
	ErrorTypeBudgetExceeded       ErrorType = "budget_exceeded"
	ErrorTypeSchemaViolation      ErrorType = "schema_violation"
	ErrorTypeBackendUnavailable   ErrorType = "backend_unavailable"
	ErrorTypeValidationFailed     ErrorType = "validation_failed"
	ErrorTypeApplyConflict        ErrorType = "apply_conflict"
	ErrorTypeApplyFailed          ErrorType = "apply_failed"
	ErrorTypeConcurrentApply      ErrorType = "concurrent_application"
	ErrorTypeCancelled            ErrorType = "cancelled"
	ErrorTypeTimedOut             ErrorType = "timed_out"
	ErrorTypeInternal             ErrorType = "internal"
)

// recommendations gives a one-line, user-facing recommendation per kind.
// Auto-apply never silently downgrades without a recorded reason; the
// recommendation is that reason when the error terminates a pipeline run.
var recommendations = map[ErrorType]string{
	ErrorTypeInputInvalid:       "check that the log and configuration inputs are well-formed and non-empty",
	ErrorTypeNoFailureDetected:  "extend the rule catalogue to cover this log shape",
	ErrorTypeBudgetExceeded:     "shorten the log window or choose a model with a larger context",
	ErrorTypeSchemaViolation:    "inspect the backend's raw response; the correction directive may need refinement",
	ErrorTypeBackendUnavailable: "retry later or switch backend providers",
	ErrorTypeValidationFailed:   "review the reported validation errors before retrying",
	ErrorTypeApplyConflict:      "resolve the conflicting patches before applying",
	ErrorTypeApplyFailed:        "inspect the restoration note; the working tree was rolled back",
	ErrorTypeConcurrentApply:    "wait for the in-flight application against this root to finish",
	ErrorTypeCancelled:          "re-run the pipeline if the cancellation was unintended",
	ErrorTypeTimedOut:           "increase the per-call timeout or the pipeline deadline",
	ErrorTypeInternal:           "this is an unexpected internal error",
}

// AppError is a structured error carrying a kind, message, optional details,
// and an optional wrapped cause.
type AppError struct {
	Type    ErrorType
	Message string
	Details string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError of the given type.
func New(t ErrorType, message string) *AppError {
	return &AppError{Type: t, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(t ErrorType, format string, args ...any) *AppError {
	return &AppError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an underlying error with a pipeline error kind.
func Wrap(cause error, t ErrorType, message string) *AppError {
	return &AppError{Type: t, Message: message, Cause: cause}
}

// Wrapf wraps an underlying error with a formatted message.
func Wrapf(cause error, t ErrorType, format string, args ...any) *AppError {
	return &AppError{Type: t, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithDetails sets Details in place and returns the same error for chaining.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf sets a formatted Details in place.
func (e *AppError) WithDetailsf(format string, args ...any) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t ErrorType) bool {
	var ae *AppError
	if As(err, &ae) {
		return ae.Type == t
	}
	return false
}

// GetType returns err's ErrorType, or ErrorTypeInternal if err is not an
// *AppError.
func GetType(err error) ErrorType {
	var ae *AppError
	if As(err, &ae) {
		return ae.Type
	}
	return ErrorTypeInternal
}

// statusCodes maps pipeline error kinds to HTTP status codes for cmd/forge-server.
var statusCodes = map[ErrorType]int{
	ErrorTypeInputInvalid:       http.StatusBadRequest,
	ErrorTypeNoFailureDetected:  http.StatusUnprocessableEntity,
	ErrorTypeBudgetExceeded:     http.StatusRequestEntityTooLarge,
	ErrorTypeSchemaViolation:    http.StatusBadGateway,
	ErrorTypeBackendUnavailable: http.StatusBadGateway,
	ErrorTypeValidationFailed:   http.StatusUnprocessableEntity,
	ErrorTypeApplyConflict:      http.StatusConflict,
	ErrorTypeApplyFailed:        http.StatusInternalServerError,
	ErrorTypeConcurrentApply:    http.StatusConflict,
	ErrorTypeCancelled:          http.StatusRequestTimeout,
	ErrorTypeTimedOut:           http.StatusGatewayTimeout,
	ErrorTypeInternal:           http.StatusInternalServerError,
}

// GetStatusCode returns the HTTP status code associated with err's kind.
func GetStatusCode(err error) int {
	t := GetType(err)
	if code, ok := statusCodes[t]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Recommendation returns the one-line recommendation for err's kind.
func Recommendation(err error) string {
	t := GetType(err)
	if rec, ok := recommendations[t]; ok {
		return rec
	}
	return recommendations[ErrorTypeInternal]
}

// SafeErrorMessage returns a message safe to show a human: validation
// messages pass through verbatim (they describe the caller's own input),
// everything else returns a generic, kind-scoped message.
func SafeErrorMessage(err error) string {
	var ae *AppError
	if !As(err, &ae) {
		return "an unexpected error occurred"
	}
	if ae.Type == ErrorTypeInputInvalid || ae.Type == ErrorTypeValidationFailed {
		return ae.Message
	}
	if rec, ok := recommendations[ae.Type]; ok {
		return rec
	}
	return "an unexpected error occurred"
}

// LogFields renders err as a structured logging field map.
func LogFields(err error) map[string]any {
	fields := map[string]any{"error": err.Error()}
	var ae *AppError
	if As(err, &ae) {
		fields["error_type"] = string(ae.Type)
		if ae.Details != "" {
			fields["error_details"] = ae.Details
		}
		if ae.Cause != nil {
			fields["underlying_error"] = ae.Cause.Error()
		}
	}
	return fields
}

// Chain joins non-nil errors in order with " -> ", returning nil if none
// are non-nil and the single error unchanged if only one is non-nil.
func Chain(errs ...error) error {
	var present []error
	for _, e := range errs {
		if e != nil {
			present = append(present, e)
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		return present[0]
	}
	msg := present[0].Error()
	for _, e := range present[1:] {
		msg += " -> " + e.Error()
	}
	return &AppError{Type: ErrorTypeInternal, Message: msg}
}
