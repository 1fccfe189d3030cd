// Package errors provides a small wrapping error type used across the
// service instead of bare fmt.Errorf chains, so sentinel errors stay
// comparable with errors.Is/errors.As while still carrying a message
// chain suitable for logging.
package errors

import (
	"errors"
)

// Error is a wrapping error: it carries its own message plus an
// optional wrapped cause.
type Error interface {
	error

	// Msg returns this error's own message, without the wrapped chain.
	Msg() string

	// Unwrap returns the wrapped cause, or nil.
	Unwrap() error
}

type customError struct {
	msg string
	err error
}

var _ Error = (*customError)(nil)

// New returns an Error with no wrapped cause.
func New(msg string) Error {
	return &customError{msg: msg}
}

// Wrap returns an Error whose message is outer's and whose cause is
// inner. A nil inner collapses to outer; a nil outer collapses to
// inner so callers can always write errors.Wrap(sentinel, err)
// without checking err first.
func Wrap(outer, inner error) error {
	if outer == nil {
		return inner
	}
	if inner == nil {
		return outer
	}
	msg := outer.Error()
	if ce, ok := outer.(*customError); ok {
		msg = ce.msg
	}
	return &customError{msg: msg, err: inner}
}

func (c *customError) Error() string {
	if c == nil {
		return ""
	}
	if c.err == nil {
		return c.msg
	}
	return c.msg + " : " + c.err.Error()
}

func (c *customError) Msg() string {
	return c.msg
}

func (c *customError) Unwrap() error {
	return c.err
}

// Contains reports whether err or any error in its chain matches
// target, in the same sense as the standard library's errors.Is, but
// also matching when the two share the same Msg() (since sentinels
// constructed with New are compared by identity by default, and two
// independently-constructed sentinels with the same text should still
// be considered the same condition by callers that only have a copy
// of the message, e.g. after a round-trip through logs).
func Contains(err, target error) bool {
	if err == nil || target == nil {
		return err == target
	}
	if errors.Is(err, target) {
		return true
	}
	te, tok := target.(Error)
	if !tok {
		return false
	}
	for err != nil {
		if ce, ok := err.(Error); ok && ce.Msg() == te.Msg() {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
