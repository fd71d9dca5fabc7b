package common

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors so transports can map them without knowing
// every sentinel.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation marks malformed or out-of-range input rejected before any
	// state change.
	KindValidation
	// KindAuthorization marks a caller that may not perform the transition.
	KindAuthorization
	// KindStateConflict marks an operation that is invalid for the current
	// status of the record.
	KindStateConflict
	// KindDependency marks cycle, depth and parent-completion failures.
	KindDependency
	// KindExternalInput marks malformed verdicts or signals from collaborators.
	KindExternalInput
	// KindNotFound marks references to records that do not exist.
	KindNotFound
	// KindInvariant marks a detected ledger invariant violation. Records in
	// this condition must not be mutated further.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindStateConflict:
		return "state_conflict"
	case KindDependency:
		return "dependency"
	case KindExternalInput:
		return "external_input"
	case KindNotFound:
		return "not_found"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error is a coded engine error. Two errors are equal under errors.Is when
// their codes match, so sentinels survive fmt.Errorf("%w") wrapping.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

// NewError constructs a coded sentinel.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

// Is matches errors carrying the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil || e == nil {
		return false
	}
	return e.Code == other.Code
}

// Wrapf annotates a sentinel with context while preserving its code.
func Wrapf(sentinel *Error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// KindOf returns the classification of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var coded *Error
	if errors.As(err, &coded) && coded != nil {
		return coded.Kind
	}
	return KindUnknown
}

// CodeOf returns the stable code of err, or "Internal" for foreign errors.
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) && coded != nil {
		return coded.Code
	}
	return "Internal"
}

// ErrInvariantViolation is shared by every ledger that re-validates its
// invariants on read.
var ErrInvariantViolation = NewError(KindInvariant, "InvariantViolation", "ledger invariant violated")

// ErrInvalidAddress marks zero or malformed party addresses.
var ErrInvalidAddress = NewError(KindValidation, "InvalidAddress", "address must not be zero")

// ErrInsufficientBalance is returned when an account cannot cover the value
// it is asked to lock.
var ErrInsufficientBalance = NewError(KindValidation, "InsufficientBalance", "insufficient available balance")
