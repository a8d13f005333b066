// Package errors defines the error taxonomy of the matching service.
//
// Categories map directly onto how a matching run reacts to failure:
// data errors skip the offending candidate, verification errors degrade a
// batch to its pre-verification scores, persistence conflicts are benign
// no-ops, and only the persistence category can abort a run entirely.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Category represents different categories of errors
type Category string

const (
	// CategoryData covers malformed amount/date fields on candidates;
	// the candidate is skipped with a warning, the run continues.
	CategoryData Category = "data"

	// CategoryVerification covers failures of the external semantic
	// verification service; batch-scoped, never fatal to the run.
	CategoryVerification Category = "verification"

	// CategoryPersistence covers relational-store failures. Inability to
	// fetch candidates or write results is the only fatal condition.
	CategoryPersistence Category = "persistence"

	// CategoryConflict covers benign write conflicts such as linking an
	// already-linked record; logged as INFO, never surfaced as an error.
	CategoryConflict Category = "conflict"

	// CategoryConfiguration covers invalid policy or connection settings.
	CategoryConfiguration Category = "configuration"

	// CategoryInternal covers unexpected conditions.
	CategoryInternal Category = "internal"
)

// Code identifies specific error conditions within categories.
type Code string

const (
	// Data errors
	CodeInvalidAmount Code = "invalid_amount"
	CodeInvalidDate   Code = "invalid_date"
	CodeMissingField  Code = "missing_field"

	// Verification errors
	CodeVerifyTimeout   Code = "verify_timeout"
	CodeVerifyTransport Code = "verify_transport"
	CodeVerifyResponse  Code = "verify_malformed_response"

	// Persistence errors
	CodeStoreUnavailable Code = "store_unavailable"
	CodeQueryFailed      Code = "query_failed"
	CodeWriteFailed      Code = "write_failed"

	// Conflict codes
	CodeAlreadyLinked Code = "already_linked"

	// Configuration errors
	CodeInvalidConfig Code = "invalid_config"
	CodeMissingConfig Code = "missing_config"

	// Internal errors
	CodeUnexpected Code = "unexpected_error"
)

// MatchError is the base error type for all application errors.
type MatchError struct {
	Category   Category          `json:"category"`
	Code       Code              `json:"code"`
	Message    string            `json:"message"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *MatchError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *MatchError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether this error aborts a matching run. Only the
// persistence category is fatal; everything else degrades gracefully.
func (e *MatchError) IsFatal() bool {
	return e.Category == CategoryPersistence
}

// GetExitCode returns an appropriate process exit code for the error
func (e *MatchError) GetExitCode() int {
	switch e.Category {
	case CategoryConfiguration:
		return 2
	case CategoryData:
		return 3
	case CategoryVerification:
		return 4
	case CategoryPersistence:
		return 5
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *MatchError) WithContext(key string, value interface{}) *MatchError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// New creates a new MatchError
func New(category Category, code Code, message string) *MatchError {
	return &MatchError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with MatchError context
func Wrap(err error, category Category, code Code, message string) *MatchError {
	if err == nil {
		return nil
	}

	return &MatchError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// DataError creates a data-quality error for a skippable candidate.
func DataError(code Code, transactionID string, err error) *MatchError {
	result := build(err, CategoryData, code, fmt.Sprintf("malformed candidate %s", transactionID))
	return result.WithContext("transaction_id", transactionID)
}

// VerificationError creates an external-verification error, scoped to one
// batch of pairs.
func VerificationError(code Code, batch int, err error) *MatchError {
	var message string
	switch code {
	case CodeVerifyTimeout:
		message = fmt.Sprintf("verification batch %d timed out", batch)
	case CodeVerifyResponse:
		message = fmt.Sprintf("verification batch %d returned a malformed response", batch)
	default:
		message = fmt.Sprintf("verification batch %d failed", batch)
	}

	result := build(err, CategoryVerification, code, message)
	return result.WithContext("batch", batch)
}

// PersistenceError creates a store error. These are the only fatal errors.
func PersistenceError(code Code, operation string, err error) *MatchError {
	result := build(err, CategoryPersistence, code, fmt.Sprintf("persistence failure during %s", operation))
	return result.WithContext("operation", operation)
}

// ConflictError creates a benign write-conflict error.
func ConflictError(code Code, sourceID string) *MatchError {
	result := New(CategoryConflict, code, fmt.Sprintf("source record %s is already linked", sourceID))
	return result.WithContext("source_id", sourceID)
}

// ConfigurationError creates a configuration error.
func ConfigurationError(code Code, setting string, err error) *MatchError {
	result := build(err, CategoryConfiguration, code, fmt.Sprintf("invalid configuration: %s", setting))
	return result.WithContext("setting", setting)
}

func build(err error, category Category, code Code, message string) *MatchError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// IsMatchError checks if an error is a MatchError
func IsMatchError(err error) bool {
	_, ok := err.(*MatchError)
	return ok
}

// AsMatchError extracts a MatchError from an error chain
func AsMatchError(err error) (*MatchError, bool) {
	var matchErr *MatchError
	if errors.As(err, &matchErr) {
		return matchErr, true
	}
	return nil, false
}

// IsConflict reports whether an error is a benign conflict.
func IsConflict(err error) bool {
	if matchErr, ok := AsMatchError(err); ok {
		return matchErr.Category == CategoryConflict
	}
	return false
}

// IsFatal reports whether an error should abort a run.
func IsFatal(err error) bool {
	if matchErr, ok := AsMatchError(err); ok {
		return matchErr.IsFatal()
	}
	return false
}
