package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures that callers are expected to handle
type ErrorKind string

const (
	KindInsufficientFunds    ErrorKind = "InsufficientFunds"
	KindInsufficientShares   ErrorKind = "InsufficientShares"
	KindInvalidQuantity      ErrorKind = "InvalidQuantity"
	KindInvalidTransition    ErrorKind = "InvalidTransition"
	KindForbidden            ErrorKind = "Forbidden"
	KindNotFound             ErrorKind = "NotFound"
	KindAmountMismatch       ErrorKind = "AmountMismatch"
	KindProcessorUnavailable ErrorKind = "ProcessorUnavailable"
	KindDuplicateReference   ErrorKind = "DuplicateReference"
	KindInvalidInput         ErrorKind = "InvalidInput"
	KindInvalidSignature     ErrorKind = "InvalidSignature"
)

// Error is a classified business error. Anything that is not an *Error is
// an internal failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks
var (
	ErrInsufficientFunds    = &Error{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrInsufficientShares   = &Error{Kind: KindInsufficientShares, Message: "insufficient shares"}
	ErrInvalidQuantity      = &Error{Kind: KindInvalidQuantity, Message: "invalid quantity"}
	ErrInvalidTransition    = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
	ErrForbidden            = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAmountMismatch       = &Error{Kind: KindAmountMismatch, Message: "amount mismatch"}
	ErrProcessorUnavailable = &Error{Kind: KindProcessorUnavailable, Message: "payment processor unavailable"}
	ErrDuplicateReference   = &Error{Kind: KindDuplicateReference, Message: "duplicate reference"}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrInvalidSignature     = &Error{Kind: KindInvalidSignature, Message: "invalid signature"}
)

// Errorf builds a classified error with a formatted message
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error
func Wrap(kind ErrorKind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first classified error in the chain, or ""
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
