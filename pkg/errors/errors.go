package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error types that can be used throughout the application
var (
	// Standard error sentinel values
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternalError    = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
	ErrUnavailable      = errors.New("service unavailable")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrCanceled         = errors.New("operation canceled")

	// Domain-specific error sentinel values
	ErrEmptyTranscript     = errors.New("transcript is empty")
	ErrTranscriptTooLarge  = errors.New("transcript exceeds maximum size")
	ErrMissingIdentifier   = errors.New("missing required identifier")
	ErrNoProviderAvailable = errors.New("no AI provider available")
	ErrProviderFailure     = errors.New("AI provider request failed")
	ErrUnparseableResponse = errors.New("unparseable AI response")
	ErrStreamClosed        = errors.New("audio stream closed")
)

// Error represents a structured error with caller location and additional context
type Error struct {
	// original is the underlying error
	original error

	// message is the error message
	message string

	// fields contains contextual information
	fields map[string]interface{}

	// stackPC is the program counter for the error's creation
	stackPC uintptr

	// file and line record where the error was created
	file string
	line int

	// Code is an optional error code for categorization
	Code string
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	pc, file, line, _ := runtime.Caller(1)

	var fieldMap map[string]interface{}
	if len(fields) > 0 && fields[0] != nil {
		fieldMap = fields[0]
	} else {
		fieldMap = make(map[string]interface{})
	}

	return &Error{
		original: errors.New(message),
		message:  message,
		fields:   fieldMap,
		stackPC:  pc,
		file:     file,
		line:     line,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}

	pc, file, line, _ := runtime.Caller(1)

	var fieldMap map[string]interface{}
	if len(fields) > 0 && fields[0] != nil {
		fieldMap = fields[0]
	} else {
		fieldMap = make(map[string]interface{})
	}

	return &Error{
		original: err,
		message:  message,
		fields:   fieldMap,
		stackPC:  pc,
		file:     file,
		line:     line,
	}
}

// WithField adds a single field to the error context
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}

	// Create a copy to avoid modifying the original
	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+1),
		stackPC:  e.stackPC,
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}

	for k, v := range e.fields {
		result.fields[k] = v
	}
	result.fields[key] = value

	return result
}

// WithFields adds multiple fields to the error context
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}

	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+len(fields)),
		stackPC:  e.stackPC,
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}

	for k, v := range e.fields {
		result.fields[k] = v
	}
	for k, v := range fields {
		result.fields[k] = v
	}

	return result
}

// WithCode adds an error code to the error
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}

	return &Error{
		original: e.original,
		message:  e.message,
		fields:   e.fields,
		stackPC:  e.stackPC,
		file:     e.file,
		line:     e.line,
		Code:     code,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}

	if e.message == "" {
		return e.original.Error()
	}

	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}

	parts := strings.Split(e.file, "/")
	filename := parts[len(parts)-1]

	return fmt.Sprintf("%s:%d", filename, e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// GetCode returns the error's code
func (e *Error) GetCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// Is reports whether any error in err's tree matches target.
// Implements the errors.Is interface.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}

	if errors.Is(e.original, target) {
		return true
	}

	return e == target
}

// AsJSON returns the error in JSON-friendly map format
func (e *Error) AsJSON() map[string]interface{} {
	if e == nil {
		return nil
	}

	result := map[string]interface{}{
		"message":  e.Error(),
		"location": e.Location(),
	}

	if e.Code != "" {
		result["code"] = e.Code
	}

	if len(e.fields) > 0 {
		result["context"] = e.fields
	}

	return result
}

// NewInvalidInput creates a new ErrInvalidInput error with additional context
func NewInvalidInput(message string, fields ...map[string]interface{}) *Error {
	err := New(message, fields...)
	return &Error{
		original: ErrInvalidInput,
		message:  message,
		fields:   err.fields,
		stackPC:  err.stackPC,
		file:     err.file,
		line:     err.line,
		Code:     "INVALID_INPUT",
	}
}

// NewPermissionDenied creates a new ErrPermissionDenied error with additional context.
// Permission failures are surfaced distinctly from processing errors because they
// should not be retried by the caller.
func NewPermissionDenied(message string, fields ...map[string]interface{}) *Error {
	err := New(message, fields...)
	return &Error{
		original: ErrPermissionDenied,
		message:  message,
		fields:   err.fields,
		stackPC:  err.stackPC,
		file:     err.file,
		line:     err.line,
		Code:     "PERMISSION_DENIED",
	}
}

// NewInternalError creates a new ErrInternalError with additional context
func NewInternalError(message string, fields ...map[string]interface{}) *Error {
	err := New(message, fields...)
	return &Error{
		original: ErrInternalError,
		message:  message,
		fields:   err.fields,
		stackPC:  err.stackPC,
		file:     err.file,
		line:     err.line,
		Code:     "INTERNAL_ERROR",
	}
}

// NewProviderFailure creates a new ErrProviderFailure with additional context
func NewProviderFailure(provider string, fields ...map[string]interface{}) *Error {
	fieldMap := make(map[string]interface{})
	if len(fields) > 0 && fields[0] != nil {
		fieldMap = fields[0]
	}
	fieldMap["provider"] = provider

	pc, file, line, _ := runtime.Caller(1)

	return &Error{
		original: ErrProviderFailure,
		message:  fmt.Sprintf("AI provider request failed: %s", provider),
		fields:   fieldMap,
		stackPC:  pc,
		file:     file,
		line:     line,
		Code:     "PROVIDER_FAILURE",
	}
}

// IsErrorType checks if an error is of a specific error type
func IsErrorType(err, target error) bool {
	return errors.Is(err, target)
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetCode()
	}
	return ""
}

// GetErrorFields extracts fields from an error if it's a structured error
func GetErrorFields(err error) map[string]interface{} {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetFields()
	}
	return nil
}
