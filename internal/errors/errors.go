package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
)

// VexusError is the structured error type for vexus.
// It carries enough context (offending tag, label or batch index) to diagnose
// a failure without re-running the call.
type VexusError struct {
	// Code is the unique error code (e.g., "ERR_402_DIMENSION_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Source, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *VexusError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *VexusError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *VexusError) Is(target error) bool {
	if t, ok := target.(*VexusError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *VexusError) WithDetail(key, value string) *VexusError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *VexusError) WithSuggestion(suggestion string) *VexusError {
	e.Suggestion = suggestion
	return e
}

// New creates a new VexusError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *VexusError {
	return &VexusError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a VexusError from an existing error.
// The error's message becomes the VexusError message.
func Wrap(code string, err error) *VexusError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is matching by code.
var (
	ErrDimensionMismatch = &VexusError{Code: ErrCodeDimensionMismatch}
	ErrBatchSizeMismatch = &VexusError{Code: ErrCodeBatchSizeMismatch}
	ErrInvalidInput      = &VexusError{Code: ErrCodeInvalidInput}
	ErrConstruction      = &VexusError{Code: ErrCodeConstruction}
	ErrLockPoisoned      = &VexusError{Code: ErrCodeLockPoisoned}
	ErrEngine            = &VexusError{Code: ErrCodeEngine}
	ErrIO                = &VexusError{Code: ErrCodeIO}
	ErrCorruptIndex      = &VexusError{Code: ErrCodeCorruptIndex}
	ErrClosed            = &VexusError{Code: ErrCodeClosed}
	ErrSourceUnavailable = &VexusError{Code: ErrCodeSourceUnavailable}
)

// DimensionMismatch reports a vector whose length differs from the store dimension.
func DimensionMismatch(expected, got int) *VexusError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", strconv.Itoa(expected)).
		WithDetail("got", strconv.Itoa(got))
}

// BatchSizeMismatch reports a packed batch whose float count is not count*dimension.
func BatchSizeMismatch(count, dimension, floats int) *VexusError {
	return New(ErrCodeBatchSizeMismatch,
		fmt.Sprintf("vector data size mismatch: expected %d floats, got %d", count*dimension, floats), nil).
		WithDetail("count", strconv.Itoa(count)).
		WithDetail("dimension", strconv.Itoa(dimension))
}

// ConstructionError reports an engine that cannot be created or reserved.
func ConstructionError(message string, cause error) *VexusError {
	return New(ErrCodeConstruction, message, cause)
}

// EngineError wraps an error returned verbatim by the index engine.
func EngineError(message string, cause error) *VexusError {
	return New(ErrCodeEngine, message, cause)
}

// LockError reports a store whose lock was poisoned by a panic.
func LockError(message string, cause error) *VexusError {
	return New(ErrCodeLockPoisoned, message, cause).
		WithSuggestion("reload the index from its last saved snapshot")
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *VexusError {
	return New(ErrCodeIO, message, cause)
}

// CorruptError reports an artifact that exists but cannot be decoded.
func CorruptError(message string, cause error) *VexusError {
	return New(ErrCodeCorruptIndex, message, cause).
		WithSuggestion("restore from backup or rebuild with 'vexus recover'")
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *VexusError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *VexusError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// SourceError reports the external store could not be opened or queried.
func SourceError(message string, cause error) *VexusError {
	return New(ErrCodeSourceUnavailable, message, cause)
}

// ClosedError reports use of a closed store.
func ClosedError() *VexusError {
	return New(ErrCodeClosed, "store is closed", nil)
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ve *VexusError
	if stderrors.As(err, &ve) {
		return ve.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first VexusError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ve *VexusError
	if stderrors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
