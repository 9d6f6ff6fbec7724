package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a castchunk error code.
type ErrorCode string

const (
	ErrMalformedDate     ErrorCode = "MALFORMED_DATE"     // 400
	ErrMalformedInput    ErrorCode = "MALFORMED_INPUT"    // 400
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrInvalidConfig     ErrorCode = "INVALID_CONFIG"     // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"     // 404
	ErrEmptyBatch        ErrorCode = "EMPTY_BATCH"        // 422
	ErrAcquisitionFailed ErrorCode = "ACQUISITION_FAILED" // 502
	ErrCancelled         ErrorCode = "CANCELLED"          // 499
	ErrInternal          ErrorCode = "INTERNAL"           // 500
)

// CastError represents a structured error with code, status, and details.
type CastError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *CastError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *CastError) Unwrap() error {
	return e.cause
}

// NewMalformedDate creates a 400 error for a date phrase that cannot be resolved.
func NewMalformedDate(phrase, reason string) *CastError {
	return &CastError{
		Code:    ErrMalformedDate,
		Status:  400,
		Message: fmt.Sprintf("malformed date %q: %s", phrase, reason),
		Details: map[string]any{"phrase": phrase, "reason": reason},
	}
}

// NewMalformedInput creates a 400 error for an input row missing required fields.
func NewMalformedInput(line int, missing []string) *CastError {
	return &CastError{
		Code:    ErrMalformedInput,
		Status:  400,
		Message: fmt.Sprintf("row %d missing required fields: %v", line, missing),
		Details: map[string]any{"line": line, "missing_fields": missing},
	}
}

// NewUnreadableRow creates a MALFORMED_INPUT error for a row that could not be
// parsed at all.
func NewUnreadableRow(line int, cause error) *CastError {
	return &CastError{
		Code:    ErrMalformedInput,
		Status:  400,
		Message: fmt.Sprintf("row %d unreadable: %v", line, cause),
		Details: map[string]any{"line": line},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *CastError {
	return &CastError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidConfig creates a 400 error for a configuration that fails validation.
func NewInvalidConfig(field, msg string) *CastError {
	return &CastError{
		Code:    ErrInvalidConfig,
		Status:  400,
		Message: fmt.Sprintf("%s: %s", field, msg),
		Details: map[string]any{"field": field},
	}
}

// NewNotFound creates a 404 error for when an episode or video cannot be found.
func NewNotFound(identifier string) *CastError {
	return &CastError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing input file.
func NewFileNotFound(path string) *CastError {
	return &CastError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewEmptyBatch creates a 422 error when a run has nothing usable to work on
// or produced nothing.
func NewEmptyBatch(msg string) *CastError {
	return &CastError{
		Code:    ErrEmptyBatch,
		Status:  422,
		Message: msg,
	}
}

// NewAcquisitionFailed creates a 502 error when neither captions nor audio
// could be turned into a transcript.
func NewAcquisitionFailed(url string, cause error) *CastError {
	msg := fmt.Sprintf("could not acquire transcript for %s", url)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &CastError{
		Code:    ErrAcquisitionFailed,
		Status:  502,
		Message: msg,
		Details: map[string]any{"url": url},
		cause:   cause,
	}
}

// NewCancelled creates a 499 error when op stops because its context ended.
func NewCancelled(op string) *CastError {
	return &CastError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
		Details: map[string]any{"operation": op},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *CastError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &CastError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err (or anything it wraps) is a CastError with the given code.
func Is(err error, code ErrorCode) bool {
	var cErr *CastError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// As extracts a CastError from err, wrapping unknown errors as INTERNAL.
func As(err error) *CastError {
	var cErr *CastError
	if stderrors.As(err, &cErr) {
		return cErr
	}
	return NewInternal(err)
}
