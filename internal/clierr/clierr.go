/*
Package clierr tags errors with the category the dispatcher uses to pick a
message and an exit code.

Only Fault is allowed to end the process abnormally; every other kind is
recovered at the dispatcher boundary into a one-line message and exit code 1.
*/
package clierr

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Kind is the discriminant of a tagged error.
type Kind int

const (
	// Fault is anything that was not anticipated. It is the zero value so an
	// untagged error is never silently downgraded.
	Fault Kind = iota
	// Syntax is a malformed command line: unknown command or flag, missing
	// positional, value of the wrong type.
	Syntax
	// Configuration is a well-formed but contradictory or invalid combination
	// of arguments.
	Configuration
	// Domain is a well-formed failure reported by the storage service.
	Domain
	// Credentials is a Domain error caused by missing account data.
	Credentials
	// Interrupted is a cooperative cancellation requested by the user.
	Interrupted
)

var kindNames = map[Kind]string{
	Fault:         "fault",
	Syntax:        "syntax",
	Configuration: "configuration",
	Domain:        "domain",
	Credentials:   "credentials",
	Interrupted:   "interrupted",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error carries a Kind alongside the underlying cause.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string { return e.cause.Error() }

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: err}
}

// Syntaxf builds a Syntax error.
func Syntaxf(format string, args ...interface{}) error {
	return Wrap(Syntax, errors.Newf(format, args...))
}

// Configurationf builds a Configuration error.
func Configurationf(format string, args ...interface{}) error {
	return Wrap(Configuration, errors.Newf(format, args...))
}

// Domainf builds a Domain error.
func Domainf(format string, args ...interface{}) error {
	return Wrap(Domain, errors.Newf(format, args...))
}

// KindOf reports the kind of err and whether it was explicitly tagged or
// recognised as a cancellation. Untagged errors report Fault, false.
func KindOf(err error) (Kind, bool) {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind, true
	}
	if errors.Is(err, context.Canceled) {
		return Interrupted, true
	}
	return Fault, false
}

// Is reports whether err is tagged with kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
