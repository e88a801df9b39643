// Package errors provides structured error handling for vexus.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (snapshot and mapping files)
//   - 3XX: External source errors (recovery database)
//   - 4XX: Validation errors
//   - 5XX: Internal errors (engine, locks, construction)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategorySource indicates failures talking to the external relational store.
	CategorySource Category = "SOURCE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates engine, lock and construction errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the store should be considered suspect.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the call failed but the store is intact.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeIO           = "ERR_201_IO"
	ErrCodeFileNotFound = "ERR_202_FILE_NOT_FOUND"
	ErrCodeCorruptIndex = "ERR_205_CORRUPT_INDEX"

	// Source errors (300-399)
	ErrCodeSourceUnavailable = "ERR_301_SOURCE_UNAVAILABLE"
	ErrCodeSourceQuery       = "ERR_302_SOURCE_QUERY"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeBatchSizeMismatch = "ERR_403_BATCH_SIZE_MISMATCH"

	// Internal errors (500-599)
	ErrCodeConstruction = "ERR_501_CONSTRUCTION"
	ErrCodeLockPoisoned = "ERR_502_LOCK_POISONED"
	ErrCodeEngine       = "ERR_503_ENGINE"
	ErrCodeClosed       = "ERR_504_CLOSED"
	ErrCodeInternal     = "ERR_505_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "402" from "ERR_402_DIMENSION_MISMATCH"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategorySource
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeLockPoisoned, ErrCodeCorruptIndex, ErrCodeSourceUnavailable:
		return SeverityFatal
	default:
		return SeverityError
	}
}
