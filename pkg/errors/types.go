// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"fmt"
	"time"
)

// ValidationError represents invalid arguments supplied to a constructor or operation.
type ValidationError struct {
	// Field identifies which input failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// IsUserVisible implements UserVisibleError.
func (e *ValidationError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ValidationError) UserMessage() string { return e.Error() }

// GetSuggestion returns the suggestion text.
func (e *ValidationError) GetSuggestion() string { return e.Suggestion }

// ConfigError represents configuration problems such as an unreadable
// properties file or a malformed property value.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "curator-default-session-timeout")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents operation timeouts.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "connect", "ensure path")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// DriftReason classifies a StructuralDriftError.
type DriftReason string

const (
	// DriftMissingField means the named field is not declared on the type.
	DriftMissingField DriftReason = "missing field"
	// DriftAccessDenied means the access policy refused the field.
	DriftAccessDenied DriftReason = "access denied"
	// DriftWrongType means the field exists but has an unexpected type.
	DriftWrongType DriftReason = "wrong type"
	// DriftWrongOwner means the value is not of the expected struct type.
	DriftWrongOwner DriftReason = "wrong owner"
)

// StructuralDriftError reports that the private layout of a wrapped
// library no longer matches what the session cloner expects.
type StructuralDriftError struct {
	// Type is the struct type the field was looked up on
	Type string

	// Field is the private field name
	Field string

	// Reason classifies the mismatch
	Reason DriftReason

	// Detail carries the observed type or policy message
	Detail string
}

// Error implements the error interface.
func (e *StructuralDriftError) Error() string {
	msg := fmt.Sprintf("structural drift on %s.%s: %s", e.Type, e.Field, e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// ErrorType implements ErrorClassifier.
func (e *StructuralDriftError) ErrorType() string { return "structural_drift" }

// IsRetryable implements ErrorClassifier. Drift never heals at runtime.
func (e *StructuralDriftError) IsRetryable() bool { return false }

// DonorUnusableError reports a donor session that is closed or never connected.
type DonorUnusableError struct {
	Reason string
}

// Error implements the error interface.
func (e *DonorUnusableError) Error() string {
	return "donor session unusable: " + e.Reason
}

// ErrorType implements ErrorClassifier.
func (e *DonorUnusableError) ErrorType() string { return "donor_unusable" }

// IsRetryable implements ErrorClassifier. A donor that has not connected yet may later.
func (e *DonorUnusableError) IsRetryable() bool { return true }

// CloneError wraps a failure of the session clone sequence.
type CloneError struct {
	// Stage names the step that failed (e.g., "extract", "connect", "start")
	Stage string

	// DonorClosed is true when the donor had already been closed at the time of failure
	DonorClosed bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *CloneError) Error() string {
	state := "donor open"
	if e.DonorClosed {
		state = "donor closed"
	}
	return fmt.Sprintf("clone failed at %s (%s): %v", e.Stage, state, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CloneError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *CloneError) ErrorType() string {
	var classifier ErrorClassifier
	if As(e.Cause, &classifier) {
		return classifier.ErrorType()
	}
	return "clone_" + e.Stage
}

// IsRetryable implements ErrorClassifier.
func (e *CloneError) IsRetryable() bool {
	return !e.DonorClosed
}

// IsRecoverable reports whether a clone failure left the donor open, so the
// caller can keep using it. Errors outside the clone sequence are not recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var cloneErr *CloneError
	if As(err, &cloneErr) {
		return !cloneErr.DonorClosed
	}
	var drift *StructuralDriftError
	if As(err, &drift) {
		return true
	}
	var unusable *DonorUnusableError
	return As(err, &unusable)
}
