package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a wpswap error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"       // 400
	ErrInvalidConfig       ErrorCode = "INVALID_CONFIG"        // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"             // 404
	ErrNoMatchFound        ErrorCode = "NO_MATCH_FOUND"        // 404, informational only
	ErrAmbiguousLocalMatch ErrorCode = "AMBIGUOUS_LOCAL_MATCH" // 409, reported per asset
	ErrRunLocked           ErrorCode = "RUN_LOCKED"            // 409
	ErrInvalidMapping      ErrorCode = "INVALID_MAPPING"       // 422
	ErrCanceled            ErrorCode = "CANCELED"              // 499
	ErrInternal            ErrorCode = "INTERNAL"              // 500
	ErrRemote              ErrorCode = "REMOTE"                // 502
	ErrUploadFailed        ErrorCode = "UPLOAD_FAILED"         // 502
)

// Error represents a structured error with code, status, and details.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *Error {
	return &Error{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidConfig creates a 400 error listing every missing or malformed setting.
func NewInvalidConfig(problems []string) *Error {
	return &Error{
		Code:    ErrInvalidConfig,
		Status:  400,
		Message: "invalid configuration: " + strings.Join(problems, "; "),
		Details: map[string]any{"problems": problems},
	}
}

// NewNotFound creates a 404 error for a missing run, document or file.
func NewNotFound(kind, identifier string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewNoMatchFound describes a local file with no remote counterpart.
// It is informational and never returned as a failure.
func NewNoMatchFound(path, stem string) *Error {
	return &Error{
		Code:    ErrNoMatchFound,
		Status:  404,
		Message: fmt.Sprintf("no remote media matches %q", stem),
		Details: map[string]any{"path": path, "stem": stem},
	}
}

// NewAmbiguousLocalMatch reports a local file that lost its stem to an earlier file.
func NewAmbiguousLocalMatch(path, stem, winner string) *Error {
	return &Error{
		Code:    ErrAmbiguousLocalMatch,
		Status:  409,
		Message: fmt.Sprintf("%s normalizes to %q, already claimed by %s", path, stem, winner),
		Details: map[string]any{"path": path, "stem": stem, "conflicts_with": winner},
	}
}

// NewRunLocked creates a 409 error when another run holds the state lock.
func NewRunLocked(lockPath string) *Error {
	return &Error{
		Code:    ErrRunLocked,
		Status:  409,
		Message: "another run is in progress",
		Details: map[string]any{"lock": lockPath},
	}
}

// NewInvalidMapping creates a 422 error for a degenerate URL mapping entry.
func NewInvalidMapping(index int, oldURL, newURL, reason string) *Error {
	return &Error{
		Code:    ErrInvalidMapping,
		Status:  422,
		Message: fmt.Sprintf("mapping[%d]: %s", index, reason),
		Details: map[string]any{"index": index, "old_url": oldURL, "new_url": newURL},
	}
}

// NewCanceled creates a 499 error when the caller stopped the operation.
func NewCanceled(stage string) *Error {
	return &Error{
		Code:    ErrCanceled,
		Status:  499,
		Message: "stopped before " + stage,
		Details: map[string]any{"stage": stage},
	}
}

// NewRemote creates a 502 error for a failed WordPress API call.
func NewRemote(operation string, status int, msg string) *Error {
	return &Error{
		Code:    ErrRemote,
		Status:  502,
		Message: fmt.Sprintf("%s: %s", operation, msg),
		Details: map[string]any{"operation": operation, "http_status": status},
	}
}

// NewUploadFailed creates a 502 error for a rejected media upload.
func NewUploadFailed(path string, status int, msg string) *Error {
	return &Error{
		Code:    ErrUploadFailed,
		Status:  502,
		Message: fmt.Sprintf("upload %s: %s", path, msg),
		Details: map[string]any{"path": path, "http_status": status},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Details: map[string]any{},
	}
}

// Is checks if err (or anything it wraps) is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}
