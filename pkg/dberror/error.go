package dberror

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCategory classifies errors by their nature and appropriate handling strategy.
// This classification helps determine whether an error should trigger retries,
// user notifications, or a transaction rollback.
type ErrorCategory int

const (
	// ErrCategoryUser represents errors caused by an invalid definition supplied by
	// the caller. Examples: attribute/method name collision, alias conflicts,
	// incompatible domains, inheritance cycles.
	// The pending template stays open and can be corrected or aborted.
	ErrCategoryUser ErrorCategory = iota

	// ErrCategoryTransient represents temporary errors that might succeed on retry.
	// Examples: lock timeouts, out of memory while building transient structures.
	ErrCategoryTransient

	// ErrCategorySystem represents errors requiring administrator intervention.
	ErrCategorySystem

	// ErrCategoryData represents consistency errors raised after the catalog may
	// already have been mutated. Examples: failure to flush instances, uniqueness
	// violations while bulk loading an index.
	// These always carry a rollback scope other than RollbackNone.
	ErrCategoryData

	// ErrCategoryConcurrency represents errors from concurrent transaction conflicts.
	ErrCategoryConcurrency

	// ErrCategoryCapacity represents exhausted catalog limits, such as the number
	// of representations a class may hold. Detected before any mutation.
	ErrCategoryCapacity
)

// String returns the category name.
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryUser:
		return "user"
	case ErrCategoryTransient:
		return "transient"
	case ErrCategorySystem:
		return "system"
	case ErrCategoryData:
		return "data"
	case ErrCategoryConcurrency:
		return "concurrency"
	case ErrCategoryCapacity:
		return "capacity"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// RollbackScope tells the caller how much of the enclosing transaction must be
// undone after the error.
type RollbackScope int

const (
	// RollbackNone means nothing was mutated.
	RollbackNone RollbackScope = iota

	// RollbackSavepoint means the transaction was rolled back to the savepoint
	// taken before the failed operation; earlier work in the transaction survives.
	RollbackSavepoint

	// RollbackTransaction means the whole transaction was aborted.
	RollbackTransaction
)

func (r RollbackScope) String() string {
	switch r {
	case RollbackNone:
		return "none"
	case RollbackSavepoint:
		return "savepoint"
	case RollbackTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// DBError represents a structured database error with rich context information.
type DBError struct {
	// Code is a unique identifier for this error type (e.g., "INHERITANCE_CYCLE").
	Code string

	// Category classifies the error for appropriate handling strategy.
	Category ErrorCategory

	// Rollback is the part of the transaction that was undone because of the error.
	Rollback RollbackScope

	// Message is a human-readable description of what went wrong.
	Message string

	// Detail provides additional context about the specific error instance.
	// Example: "attribute 'color' from Shape and method 'color' from Paint".
	Detail string

	// Hint suggests how the user might fix or work around this error.
	Hint string

	// Operation identifies the operation being performed when the error occurred.
	// Examples: "Flatten", "Resolve", "Install", "AllocateIndex".
	Operation string

	// Component identifies the system component where the error originated.
	// Examples: "Resolver", "HierarchyDriver", "IndexAllocator".
	Component string

	// Cause is the underlying error that triggered this database error.
	Cause error

	// Stack contains the call stack where this error was created.
	Stack []uintptr
}

// New creates a new DBError with the specified code, category, and message.
func New(category ErrorCategory, code, message string) *DBError {
	err := &DBError{
		Code:     code,
		Category: category,
		Message:  message,
		Stack:    captureStack(),
	}
	return err
}

// Wrap wraps an existing error with database-specific context information.
// If the error is already a DBError, it enriches the existing error with
// operation and component context (only if not already set).
func Wrap(err error, code, operation, component string) *DBError {
	if err == nil {
		return nil
	}

	var dbErr *DBError
	if errors.As(err, &dbErr) {
		if dbErr.Operation == "" {
			dbErr.Operation = operation
		}
		if dbErr.Component == "" {
			dbErr.Component = component
		}
		return dbErr
	}

	return &DBError{
		Code:      code,
		Category:  ErrCategorySystem,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

// WithDetail sets Detail and returns the receiver for chaining.
func (e *DBError) WithDetail(format string, args ...any) *DBError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithHint sets Hint and returns the receiver for chaining.
func (e *DBError) WithHint(hint string) *DBError {
	e.Hint = hint
	return e
}

// WithCause sets Cause and returns the receiver for chaining.
func (e *DBError) WithCause(cause error) *DBError {
	e.Cause = cause
	return e
}

// captureStack captures the current call stack for debugging purposes.
// It skips the first 3 frames to exclude captureStack, New/Wrap, and the
// immediate caller, focusing on the actual error origin.
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// Error implements the standard Go error interface
//
// The format follows the pattern:
// [ERROR_CODE] Message: Detail (operation: Operation, component: Component) caused by: underlying error
func (e *DBError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Detail != "" {
		b.WriteString(fmt.Sprintf(": %s", e.Detail))
	}

	if e.Operation != "" {
		b.WriteString(fmt.Sprintf(" (operation: %s", e.Operation))
		if e.Component != "" {
			b.WriteString(fmt.Sprintf(", component: %s", e.Component))
		}
		b.WriteString(")")
	}

	if e.Cause != nil && e.Cause.Error() != e.Message {
		b.WriteString(fmt.Sprintf(" caused by: %v", e.Cause))
	}

	return b.String()
}

// Unwrap returns the underlying cause error, enabling error chain traversal
// with Go's standard error handling functions like errors.Is and errors.As.
func (e *DBError) Unwrap() error {
	return e.Cause
}

// FormatStack returns a human-readable stack trace for debugging purposes.
func (e *DBError) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		b.WriteString(fmt.Sprintf("  %s\n    %s:%d\n",
			f.Function, f.File, f.Line))
		if !more {
			break
		}
	}

	return b.String()
}

// CategoryOf returns the category of the first DBError in err's chain.
// Errors that are not DBErrors are reported as system errors.
func CategoryOf(err error) ErrorCategory {
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Category
	}
	return ErrCategorySystem
}

// RollbackOf returns the rollback scope recorded on err, RollbackNone if none.
func RollbackOf(err error) RollbackScope {
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Rollback
	}
	return RollbackNone
}
