// Package apperr holds the error taxonomy shared by the POS pipeline.
//
// Every failure surfaced by a domain package is an *Error whose Kind is one of
// the sentinel values below, so callers can branch with errors.Is without
// knowing which package produced it:
//
//	if errors.Is(err, apperr.ErrIllegalTransition) { reload() }
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation covers bad input: modifier counts, quantities, amounts,
	// missing fields. Recoverable locally and never logged as a fault.
	ErrValidation = errors.New("validation error")

	// ErrInsufficientFunds is returned when cash given is below the total.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrIllegalTransition means the drawer or ticket was not in a state that
	// allows the requested operation. It signals stale local state.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrPersistence wraps any failing call to an external collaborator.
	ErrPersistence = errors.New("persistence error")

	// ErrNotFound is returned when a referenced line, ticket or store is unknown.
	ErrNotFound = errors.New("not found")
)

// Error is the concrete error type. Kind is one of the sentinels above,
// Op names the operation that failed and Err is the optional cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Validation(op, format string, args ...any) *Error {
	return newError(ErrValidation, op, format, args...)
}

func InsufficientFunds(op, format string, args ...any) *Error {
	return newError(ErrInsufficientFunds, op, format, args...)
}

func IllegalTransition(op, format string, args ...any) *Error {
	return newError(ErrIllegalTransition, op, format, args...)
}

func NotFound(op, format string, args ...any) *Error {
	return newError(ErrNotFound, op, format, args...)
}

// Persistence wraps a collaborator failure. A nil cause returns nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Kind == ErrPersistence {
		return err
	}
	return &Error{Kind: ErrPersistence, Op: op, Err: err}
}

// KindOf returns the sentinel kind carried by err, or nil if err is not
// part of the taxonomy.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrInsufficientFunds, ErrIllegalTransition, ErrNotFound, ErrPersistence} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
