package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch on the category instead of
// string-matching error messages.
type Kind int

const (
	// KindUnknown marks errors produced outside this package.
	KindUnknown Kind = iota
	// KindUserInput covers requests rejected before any network call.
	KindUserInput
	// KindRecoverableRemote covers transport failures the user may retry.
	KindRecoverableRemote
	// KindDefinitiveRejection covers remote answers that will not change on
	// retry with the same inputs.
	KindDefinitiveRejection
	// KindFatalInvariant covers unrecoverable conditions that need operator
	// attention, such as an orphaned funded account.
	KindFatalInvariant
)

// String names the kind for logs.
func (k Kind) String() string {
	switch k {
	case KindUserInput:
		return "user_input"
	case KindRecoverableRemote:
		return "recoverable_remote"
	case KindDefinitiveRejection:
		return "definitive_rejection"
	case KindFatalInvariant:
		return "fatal_invariant"
	default:
		return "unknown"
	}
}

// Error tags an underlying error with a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a tagged error from a message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap tags an existing error. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err, or KindUnknown when err carries no tag.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err represents an invariant violation.
func IsFatal(err error) bool {
	return KindOf(err) == KindFatalInvariant
}
