package errkind

import (
	"errors"
	"fmt"
)

// Base error types
var (
	ErrValidation = errors.New("validation failed")
	ErrTransport  = errors.New("transport unavailable")
	ErrProvider   = errors.New("provider rejected request")
	ErrStore      = errors.New("store unavailable")
	ErrInternal   = errors.New("internal error")
)

// Kind represents the category of a gating error.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTransport  Kind = "transport"
	KindProvider   Kind = "provider"
	KindStore      Kind = "store"
	KindInternal   Kind = "internal"
)

// GateError is a structured error for quota and licensing operations.
// All failures crossing the message boundary are converted to typed
// response fields, so GateError never leaves the privileged context
// as a raised error.
type GateError struct {
	Kind Kind
	Op   string // Operation that failed (e.g., "check_and_consume_page")
	Msg  string // User-facing message, if any
	Err  error  // Underlying error
}

func (e *GateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s failed", e.Op)
}

func (e *GateError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support for the base error types.
func (e *GateError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrProvider:
		return e.Kind == KindProvider
	case ErrStore:
		return e.Kind == KindStore
	case ErrInternal:
		return e.Kind == KindInternal
	}
	return errors.Is(e.Err, target)
}

// New creates a GateError with a user-facing message.
func New(kind Kind, op, msg string) *GateError {
	return &GateError{Kind: kind, Op: op, Msg: msg}
}

// Wrap creates a GateError around an underlying cause. The message is
// what a caller may show to a user; the cause stays behind Unwrap.
func Wrap(kind Kind, op, msg string, err error) *GateError {
	return &GateError{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Validation reports a missing or malformed caller input.
func Validation(op, msg string) *GateError {
	return New(KindValidation, op, msg)
}

// Message returns the user-facing message for an error, falling back to
// the error string when no explicit message was attached.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ge *GateError
	if errors.As(err, &ge) && ge.Msg != "" {
		return ge.Msg
	}
	return err.Error()
}

// IsValidation checks whether an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTransport checks whether an error is a transport error. Callers of
// the gating protocol must fail open on these.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsStore checks whether an error is a durable storage error.
func IsStore(err error) bool {
	return errors.Is(err, ErrStore)
}
