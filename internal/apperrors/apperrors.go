// Package apperrors implements the engine's error taxonomy: Validation,
// NotFound, Conflict, Filesystem, Schema, and Cancelled, each mapped to
// an HTTP status code for the HTTP Surface.
package apperrors

import (
	"errors"
	"fmt"
)

// Code identifies which member of the taxonomy an error belongs to.
type Code string

const (
	CodeValidation Code = "VALIDATION"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeFilesystem Code = "FILESYSTEM"
	CodeSchema     Code = "SCHEMA"
	CodeCancelled  Code = "CANCELLED"
	CodeInternal   Code = "INTERNAL"
)

// AppError carries a taxonomy code alongside the wrapped error.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func build(code Code, err error, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validationf builds a Validation error.
func Validationf(format string, args ...any) error {
	return build(CodeValidation, nil, format, args...)
}

// ValidationErrf wraps an underlying error as a Validation error.
func ValidationErrf(err error, format string, args ...any) error {
	return build(CodeValidation, err, format, args...)
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) error {
	return build(CodeNotFound, nil, format, args...)
}

// Conflictf builds a Conflict error.
func Conflictf(format string, args ...any) error {
	return build(CodeConflict, nil, format, args...)
}

// Filesystemf wraps a filesystem-layer error.
func Filesystemf(err error, format string, args ...any) error {
	return build(CodeFilesystem, err, format, args...)
}

// Schemaf wraps a document-validation error.
func Schemaf(err error, format string, args ...any) error {
	return build(CodeSchema, err, format, args...)
}

// Cancelledf builds a Cancelled error.
func Cancelledf(format string, args ...any) error {
	return build(CodeCancelled, nil, format, args...)
}

// Internalf builds an unclassified server error.
func Internalf(err error, format string, args ...any) error {
	return build(CodeInternal, err, format, args...)
}

// GetCode extracts the taxonomy code from err, defaulting to Internal.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error's taxonomy code to the status code the HTTP
// Surface should respond with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeValidation:
		return 400
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 409
	case CodeCancelled:
		return 499
	case CodeFilesystem, CodeSchema, CodeInternal:
		return 500
	default:
		return 500
	}
}

// Is and As pass through to the standard library so callers never need
// to import "errors" alongside this package.
func Is(err, target error) bool { return errors.Is(err, target) }
func As(err error, target any) bool {
	return errors.As(err, target)
}
