// Package errors defines the structured error type shared by the
// configuration loader, template cache, database layer and HTTP handlers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfigDefault  ErrorType = "config_default"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeParse          ErrorType = "parse_error"
	ErrorTypeRender         ErrorType = "render_error"
	ErrorTypeDatabase       ErrorType = "database_error"
	ErrorTypeMissingGlobals ErrorType = "missing_globals"
	ErrorTypeInternal       ErrorType = "internal"
)

// AppError is a structured error type with context.
type AppError struct {
	Type     ErrorType
	Op       string
	Message  string
	Cause    error
	FilePath string
	Line     int
	Column   int
}

// Error implements the error interface.
func (e *AppError) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Op))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another *AppError of the same type. An empty Op on the target
// matches any operation.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		if e.Type != t.Type {
			return false
		}
		return t.Op == "" || e.Op == t.Op
	}

	return false
}

// WithLocation adds file location information.
func (e *AppError) WithLocation(filePath string, line, column int) *AppError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// Sentinels for errors.Is checks against a whole category.
var (
	ErrNotFound       = &AppError{Type: ErrorTypeNotFound}
	ErrParse          = &AppError{Type: ErrorTypeParse}
	ErrRender         = &AppError{Type: ErrorTypeRender}
	ErrDatabase       = &AppError{Type: ErrorTypeDatabase}
	ErrMissingGlobals = &AppError{Type: ErrorTypeMissingGlobals}
)

// NewNotFoundError reports a missing file or template.
func NewNotFoundError(path string, cause error) *AppError {
	return &AppError{
		Type:     ErrorTypeNotFound,
		Op:       "open",
		Message:  "file not found",
		Cause:    cause,
		FilePath: path,
	}
}

// NewParseError reports malformed template source at the given line.
func NewParseError(path string, line int, cause error) *AppError {
	return &AppError{
		Type:     ErrorTypeParse,
		Op:       "parse",
		Message:  "template syntax error",
		Cause:    cause,
		FilePath: path,
		Line:     line,
	}
}

// NewRenderError reports a failure while executing a parsed template.
func NewRenderError(path string, cause error) *AppError {
	return &AppError{
		Type:     ErrorTypeRender,
		Op:       "render",
		Message:  "template render failed",
		Cause:    cause,
		FilePath: path,
	}
}

// NewDatabaseError reports a failed database step. op is the step's
// symbolic name and ends up in the client-facing error body.
func NewDatabaseError(op, message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeDatabase,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigDefault records a configuration key that fell back to its default.
func NewConfigDefault(key, raw string) *AppError {
	return &AppError{
		Type:    ErrorTypeConfigDefault,
		Op:      key,
		Message: fmt.Sprintf("invalid value %q, using default", raw),
	}
}

// NewMissingGlobals reports a handler wired without its dependencies.
func NewMissingGlobals(what string) *AppError {
	return &AppError{
		Type:    ErrorTypeMissingGlobals,
		Op:      "init",
		Message: what + " not initialized",
	}
}

// NewInternalError wraps anything else.
func NewInternalError(op, message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal when err is not
// an *AppError.
func TypeOf(err error) ErrorType {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Type
	}

	return ErrorTypeInternal
}

// OpOf returns the operation recorded on err, if any.
func OpOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Op
	}

	return ""
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// HTTPStatus maps an error to the response status the server should send.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if TypeOf(err) == ErrorTypeNotFound {
		return http.StatusNotFound
	}

	return http.StatusInternalServerError
}
