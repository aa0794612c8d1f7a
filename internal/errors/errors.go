package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnauthorized is returned when the caller lacks the capability
	// required by an operation.
	ErrUnauthorized = Register(2, "unauthorized")

	// ErrState is returned when an operation is not valid for the current
	// state of the vault.
	ErrState = Register(3, "invalid state")

	// ErrInput is returned for malformed or out of range input.
	ErrInput = Register(4, "invalid input")

	// ErrPolicy is returned when an administered policy blocks an operation.
	ErrPolicy = Register(5, "blocked by policy")

	// ErrCollaborator is returned when the external asset ledger fails.
	ErrCollaborator = Register(6, "asset ledger failure")

	// ErrNotFound is returned when requested data does not exist.
	ErrNotFound = Register(7, "not found")

	// ErrStorage wraps failures of the persistence layer.
	ErrStorage = Register(8, "storage failure")
)

// Register returns a root error instance. Each code can be registered only
// once, an attempt to reuse a code panics.
//
// Use this function only during a program startup phase.
func Register(code uint32, description string) *Error {
	if e, ok := usedCodes[code]; ok {
		panic(fmt.Sprintf("error with code %d is already registered: %q", code, e.desc))
	}
	err := &Error{
		code: code,
		desc: description,
	}
	usedCodes[code] = err
	return err
}

// usedCodes keeps track of registered codes. Code 1 is reserved for errors
// that do not originate from this package.
var usedCodes = map[uint32]*Error{
	1: nil,
}

// Error represents a registered error.
//
// Root errors categorize failures. A root error can declare more specific
// errors using Register on itself; a specific error is matched both by its
// own Is method and by the Is method of its root.
type Error struct {
	code   uint32
	desc   string
	parent *Error
}

// Register declares an error that belongs to the e category.
func (e *Error) Register(code uint32, description string) *Error {
	err := Register(code, description)
	err.parent = e
	return err
}

func (e *Error) Error() string {
	return e.desc
}

// Code returns the registered code of this error.
func (e *Error) Code() uint32 {
	return e.code
}

// Root returns the category this error belongs to.
func (e *Error) Root() *Error {
	r := e
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// New returns a new error wrapping this one.
func (e *Error) New(description string) error {
	return Wrap(e, description)
}

// Newf is New with formatting capabilities.
func (e *Error) Newf(description string, args ...interface{}) error {
	return Wrap(e, fmt.Sprintf(description, args...))
}

// Is checks if the given error is of this kind. The error chain is unwrapped
// and every registered error found is compared against this instance and its
// parents.
func (e *Error) Is(err error) bool {
	if e == nil {
		return err == nil
	}
	for err != nil {
		if reg, ok := err.(*Error); ok {
			for r := reg; r != nil; r = r.parent {
				if r == e {
					return true
				}
			}
			return false
		}
		err = unwrap(err)
	}
	return false
}

func unwrap(err error) error {
	switch e := err.(type) {
	case causer:
		if c := e.Cause(); c != err {
			return c
		}
	case interface{ Unwrap() error }:
		return e.Unwrap()
	}
	return nil
}

type causer interface {
	Cause() error
}

// Wrap extends given error with an additional information. A stack trace is
// attached once, at the innermost wrap. Wrapping nil returns nil.
func Wrap(err error, description string) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(stackTracer); !ok {
		if _, ok := err.(*wrappedError); !ok {
			err = errors.WithStack(err)
		}
	}
	return &wrappedError{
		parent: err,
		msg:    description,
	}
}

// Wrapf is Wrap with formatting capabilities.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

type wrappedError struct {
	msg    string
	parent error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.msg, e.parent.Error())
}

func (e *wrappedError) Cause() error {
	return e.parent
}

func (e *wrappedError) Unwrap() error {
	return e.parent
}

// Kind returns the registered root category of err, or nil when err does not
// carry a registered error.
func Kind(err error) *Error {
	for err != nil {
		if reg, ok := err.(*Error); ok {
			return reg.Root()
		}
		err = unwrap(err)
	}
	return nil
}
