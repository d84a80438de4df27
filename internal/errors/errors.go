package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Validation errors - invalid request input
	ErrorTypeValidation
	// Database errors - backend connection or query failures
	ErrorTypeDatabase
	// Internal errors - unexpected internal state
	ErrorTypeInternal
	// Schema errors - malformed or inconsistent schema, fatal at graph build
	ErrorTypeSchemaValidation
	// Aggregation invoked on elements with different identities
	ErrorTypeIdentityMismatch
	// Named view lookup failed
	ErrorTypeNamedViewNotFound
	// Named view or named operation parameter has no value and no default
	ErrorTypeMissingRequiredParameter
	// A named view used where only a plain view is allowed
	ErrorTypeNestedNamedViewNotAllowed
	// Operation i output cannot be piped into operation i+1
	ErrorTypeOperationChainType
	// Handler or backend failure during a chain step
	ErrorTypeHandlerExecution
	// Named view / named operation / job cache unavailable
	ErrorTypeCacheOperationFailed
	// A delegate graph of a federated store failed
	ErrorTypeFederatedDelegateFailure
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, request rejected
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Sentinels for errors.Is. Matching is by Type only.
var (
	ErrSchemaValidation          = &Error{Type: ErrorTypeSchemaValidation}
	ErrIdentityMismatch          = &Error{Type: ErrorTypeIdentityMismatch}
	ErrNamedViewNotFound         = &Error{Type: ErrorTypeNamedViewNotFound}
	ErrMissingRequiredParameter  = &Error{Type: ErrorTypeMissingRequiredParameter}
	ErrNestedNamedViewNotAllowed = &Error{Type: ErrorTypeNestedNamedViewNotAllowed}
	ErrOperationChainType        = &Error{Type: ErrorTypeOperationChainType}
	ErrHandlerExecution          = &Error{Type: ErrorTypeHandlerExecution}
	ErrCacheOperationFailed      = &Error{Type: ErrorTypeCacheOperationFailed}
	ErrFederatedDelegateFailure  = &Error{Type: ErrorTypeFederatedDelegateFailure}
	ErrValidation                = &Error{Type: ErrorTypeValidation}
	ErrConfig                    = &Error{Type: ErrorTypeConfig}
)

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if len(e.Context) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, e.contextString())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		e.Type.String(),
		e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for _, k := range e.contextKeys() {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, e.Context[k]))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

func (e *Error) contextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Error) contextString() string {
	parts := make([]string, 0, len(e.Context))
	for _, k := range e.contextKeys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Context[k]))
	}
	return strings.Join(parts, " ")
}

// String returns the upper-case name of the error type
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeDatabase:
		return "DATABASE"
	case ErrorTypeInternal:
		return "INTERNAL"
	case ErrorTypeSchemaValidation:
		return "SCHEMA_VALIDATION"
	case ErrorTypeIdentityMismatch:
		return "IDENTITY_MISMATCH"
	case ErrorTypeNamedViewNotFound:
		return "NAMED_VIEW_NOT_FOUND"
	case ErrorTypeMissingRequiredParameter:
		return "MISSING_REQUIRED_PARAMETER"
	case ErrorTypeNestedNamedViewNotAllowed:
		return "NESTED_NAMED_VIEW_NOT_ALLOWED"
	case ErrorTypeOperationChainType:
		return "OPERATION_CHAIN_TYPE"
	case ErrorTypeHandlerExecution:
		return "HANDLER_EXECUTION"
	case ErrorTypeCacheOperationFailed:
		return "CACHE_OPERATION_FAILED"
	case ErrorTypeFederatedDelegateFailure:
		return "FEDERATED_DELEGATE_FAILURE"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Convenience constructors for common error types

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// DatabaseErrorf wraps a backend error with formatting
func DatabaseErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeDatabase, SeverityCritical, fmt.Sprintf(format, args...))
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// SchemaErrorf creates a schema validation error
func SchemaErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeSchemaValidation, SeverityCritical, fmt.Sprintf(format, args...))
}

// IdentityMismatchf creates an identity mismatch error
func IdentityMismatchf(format string, args ...interface{}) *Error {
	return New(ErrorTypeIdentityMismatch, SeverityCritical, fmt.Sprintf(format, args...))
}

// NamedViewNotFound reports a missing named view
func NamedViewNotFound(name string) *Error {
	return New(ErrorTypeNamedViewNotFound, SeverityHigh, fmt.Sprintf("named view %q not found", name)).
		WithContext("named_view", name)
}

// MissingRequiredParameter reports a parameter with no value and no default
func MissingRequiredParameter(owner, param string) *Error {
	return New(ErrorTypeMissingRequiredParameter, SeverityHigh,
		fmt.Sprintf("missing value for required parameter %q of %q", param, owner)).
		WithContext("parameter", param)
}

// NestedNamedViewNotAllowedf creates a nested named view error
func NestedNamedViewNotAllowedf(format string, args ...interface{}) *Error {
	return New(ErrorTypeNestedNamedViewNotAllowed, SeverityHigh, fmt.Sprintf(format, args...))
}

// ChainTypeErrorf creates an operation chain type error
func ChainTypeErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeOperationChainType, SeverityHigh, fmt.Sprintf(format, args...))
}

// HandlerError wraps a handler failure with the operation class
func HandlerError(err error, class string) *Error {
	return Wrap(err, ErrorTypeHandlerExecution, SeverityHigh,
		fmt.Sprintf("failed to execute %s", class)).WithContext("operation", class)
}

// CacheError wraps a cache backend failure
func CacheError(err error, op, key string) *Error {
	e := Wrap(err, ErrorTypeCacheOperationFailed, SeverityHigh, fmt.Sprintf("cache %s failed", op))
	if key != "" {
		e.WithContext("key", key)
	}
	return e
}

// DelegateError wraps a failure of one federated delegate graph
func DelegateError(err error, graphID, class string) *Error {
	return Wrap(err, ErrorTypeFederatedDelegateFailure, SeverityHigh,
		fmt.Sprintf("delegate graph %q failed to execute %s", graphID, class)).
		WithContext("graph_id", graphID)
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}
	return false
}

// GetType returns the type of the outermost structured error
func GetType(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
