// Package consenserr implements the closed error taxonomy of §7: every
// rejection path in validation, reveal-checking, and reorg returns one of
// these codes instead of an ad-hoc error string, so callers (the
// slashing manager in particular) can classify failures without string
// matching.
package consenserr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code enumerates the consensus error taxonomy of spec §7.
type Code int

const (
	_ Code = iota
	InvalidHeader
	InvalidWork
	InvalidReveal
	InvalidStateTransition
	UnauthorizedProducer
	WrongTurn
	OrphanBlock
	StorageError
	ReorgBudgetExceeded
	ConfigError
)

func (c Code) String() string {
	switch c {
	case InvalidHeader:
		return "InvalidHeader"
	case InvalidWork:
		return "InvalidWork"
	case InvalidReveal:
		return "InvalidReveal"
	case InvalidStateTransition:
		return "InvalidStateTransition"
	case UnauthorizedProducer:
		return "UnauthorizedProducer"
	case WrongTurn:
		return "WrongTurn"
	case OrphanBlock:
		return "OrphanBlock"
	case StorageError:
		return "StorageError"
	case ReorgBudgetExceeded:
		return "ReorgBudgetExceeded"
	case ConfigError:
		return "ConfigError"
	default:
		return "Unknown"
	}
}

// Error is the structured, classified error returned by the core. It
// never crosses the chain-write lock as a panic — only as a value.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a classified error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies an underlying error, attaching a stack trace via
// pkg/errors so the original call site survives across goroutine
// boundaries in logs.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: errors.WithStack(cause)}
}

// Is reports whether err is a classified *Error with the given code.
func Is(err error, code Code) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
