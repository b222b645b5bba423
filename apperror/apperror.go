// Package apperror defines the error kinds shared by the transaction
// executor, the patient code allocator and the HTTP layer.
//
// Callers switch on KindOf(err) instead of inspecting concrete types:
//
//	switch apperror.KindOf(err) {
//	case apperror.KindCapacityExceeded:
//	case apperror.KindOperationFailed:
//	}
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind int

const (
	// KindUnknown is any error not created by this package.
	KindUnknown Kind = iota
	// KindValidation is a rejected input.
	KindValidation
	// KindConflict is a business rule violation against existing data.
	KindConflict
	// KindNotFound is a missing record.
	KindNotFound
	// KindCapacityExceeded means the daily code ceiling was reached.
	KindCapacityExceeded
	// KindOperationFailed wraps exhausted retries and unclassified infrastructure failures.
	KindOperationFailed
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindConflict:
		return "CONFLICT"
	case KindNotFound:
		return "NOT_FOUND"
	case KindCapacityExceeded:
		return "CAPACITY_EXCEEDED"
	case KindOperationFailed:
		return "OPERATION_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error carried through the application.
type Error struct {
	Kind    Kind
	Message string
	// Err is the wrapped cause. OperationFailed errors never set it so that
	// driver details stay out of API responses.
	Err error
	// Attempts is set on OperationFailed errors.
	Attempts int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}
	ErrOperationFailed  = &Error{Kind: KindOperationFailed}
)

// Validation returns a KindValidation error.
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict returns a KindConflict error.
func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// CapacityExceeded reports that no sequence is left for the given date prefix.
func CapacityExceeded(datePrefix string, limit int) error {
	return &Error{
		Kind:    KindCapacityExceeded,
		Message: fmt.Sprintf("daily code capacity of %d reached for %s", limit, datePrefix),
	}
}

// OperationFailed is returned once retries are exhausted or the failure is not retryable.
func OperationFailed(attempts int) error {
	return &Error{
		Kind:     KindOperationFailed,
		Message:  fmt.Sprintf("operation failed after %d attempt(s)", attempts),
		Attempts: attempts,
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsBusinessRule reports whether err is a rule violation that must never be retried.
func IsBusinessRule(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindNotFound, KindCapacityExceeded:
		return true
	}
	return false
}
