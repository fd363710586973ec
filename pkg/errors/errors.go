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
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternalError      = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
	ErrCanceled           = errors.New("operation canceled")
	ErrFailedPrecondition = errors.New("failed precondition")

	// Domain-specific error sentinel values
	ErrParse           = errors.New("malformed SIP message")
	ErrProtocol        = errors.New("protocol violation")
	ErrAuth            = errors.New("authentication failure")
	ErrTransport       = errors.New("transport failure")
	ErrRelay           = errors.New("media relay failure")
	ErrSessionNotFound = errors.New("call session not found")
	ErrRegistration    = errors.New("registration failed")
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

func newDomain(sentinel error, code, message string, fields []map[string]interface{}) *Error {
	fieldMap := make(map[string]interface{})
	if len(fields) > 0 && fields[0] != nil {
		fieldMap = fields[0]
	}

	pc, file, line, _ := runtime.Caller(2)

	return &Error{
		original: sentinel,
		message:  message,
		fields:   fieldMap,
		stackPC:  pc,
		file:     file,
		line:     line,
		Code:     code,
	}
}

// NewParseError creates a new ErrParse error for an undecodable datagram
func NewParseError(details string, fields ...map[string]interface{}) *Error {
	return newDomain(ErrParse, "PARSE_ERROR", fmt.Sprintf("malformed SIP message: %s", details), fields)
}

// NewProtocolError creates a new ErrProtocol error for a well-formed message
// missing fields its type requires
func NewProtocolError(details string, fields ...map[string]interface{}) *Error {
	return newDomain(ErrProtocol, "PROTOCOL_ERROR", fmt.Sprintf("protocol violation: %s", details), fields)
}

// NewAuthError creates a new ErrAuth error with additional context
func NewAuthError(details string, fields ...map[string]interface{}) *Error {
	return newDomain(ErrAuth, "AUTH_ERROR", fmt.Sprintf("authentication failure: %s", details), fields)
}

// NewTransportError creates a new ErrTransport error with additional context
func NewTransportError(details string, fields ...map[string]interface{}) *Error {
	return newDomain(ErrTransport, "TRANSPORT_ERROR", fmt.Sprintf("transport failure: %s", details), fields)
}

// NewRelayError creates a new ErrRelay error with additional context
func NewRelayError(details string, fields ...map[string]interface{}) *Error {
	return newDomain(ErrRelay, "RELAY_ERROR", fmt.Sprintf("media relay failure: %s", details), fields)
}

// NewSessionNotFound creates a new ErrSessionNotFound for an unknown Call-ID
func NewSessionNotFound(callID string, fields ...map[string]interface{}) *Error {
	err := newDomain(ErrSessionNotFound, "SESSION_NOT_FOUND", fmt.Sprintf("call session not found: %s", callID), fields)
	err.fields["call_id"] = callID
	return err
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
