// Package errs implements the error-kind taxonomy of spec section 7.
// Every error that can arise while handling a peer is tagged with a
// Kind so the connection boundary (source/raknet, source/bedrock) can
// decide the one correct action for it — log and continue, close with
// a reason, or (for Fatal) abort startup — without ad-hoc type
// switches scattered through the codebase.
package errs

import "fmt"

type Kind int

const (
	Malformed Kind = iota
	Unauthenticated
	Outdated
	Violation
	Timeout
	IO
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case Unauthenticated:
		return "unauthenticated"
	case Outdated:
		return "outdated"
	case Violation:
		return "violation"
	case Timeout:
		return "timeout"
	case IO:
		return "io"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside the usual message/cause chain, so
// callers can branch on kind with errors.As instead of string
// matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and IO otherwise — an unclassified error from the standard
// library is treated as a transient I/O failure, the conservative
// default per spec 7.
func KindOf(err error) Kind {
	var e *Error
	if ok := As(err, &e); ok {
		return e.Kind
	}
	return IO
}

// As is a thin wrapper around errors.As kept local so callers only
// need to import this package for the common case.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
