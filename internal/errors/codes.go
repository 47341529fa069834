// Package errors provides structured error handling for CaseGrounds.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (case storage, indexes, snapshot cache)
//   - 3XX: Network errors (web fetch, LLM, embeddings)
//   - 4XX: Validation errors (paths, formats, domains, citations)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates case storage and cache I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeCaseNotFound     = "ERR_201_CASE_NOT_FOUND"
	ErrCodeDocumentNotFound = "ERR_202_DOCUMENT_NOT_FOUND"
	ErrCodeSnapshotCorrupt  = "ERR_203_SNAPSHOT_CORRUPT"
	ErrCodeIndexCorrupt     = "ERR_204_INDEX_CORRUPT"

	// Network errors (300-399)
	ErrCodeFetchFailed     = "ERR_301_FETCH_FAILED"
	ErrCodeLLMUnavailable  = "ERR_302_LLM_UNAVAILABLE"
	ErrCodeEmbeddingFailed = "ERR_303_EMBEDDING_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidPath       = "ERR_401_INVALID_PATH"
	ErrCodeUnsupportedFormat = "ERR_402_UNSUPPORTED_FORMAT"
	ErrCodeDomainNotAllowed  = "ERR_403_DOMAIN_NOT_ALLOWED"
	ErrCodeCitationInvalid   = "ERR_404_CITATION_INVALID"
	ErrCodeInvalidInput      = "ERR_405_INVALID_INPUT"

	// Internal errors (500-599)
	ErrCodeInternal    = "ERR_501_INTERNAL"
	ErrCodeOCRFailed   = "ERR_502_OCR_FAILED"
	ErrCodeMaxRetries  = "ERR_503_MAX_RETRIES"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_CASE_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Fatal errors
	switch code {
	case ErrCodeIndexCorrupt:
		return SeverityFatal
	}

	// OCR failure falls back to raw extraction; invalid citations drive
	// the answer retry loop. Neither aborts the operation.
	switch code {
	case ErrCodeOCRFailed, ErrCodeCitationInvalid:
		return SeverityWarning
	}

	// Retryable network errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	// Default to error severity
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeFetchFailed, ErrCodeLLMUnavailable, ErrCodeEmbeddingFailed:
		return true
	default:
		return false
	}
}
