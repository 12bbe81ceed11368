// Package failure defines the error kinds every engine operation reports.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide on remediation.
type Kind string

const (
	NotFound              Kind = "NotFound"
	Duplicate             Kind = "Duplicate"
	SyntaxInvalid         Kind = "SyntaxInvalid"
	ValidatorUnavailable  Kind = "ValidatorUnavailable"
	OutOfScope            Kind = "OutOfScope"
	IOFailure             Kind = "IOFailure"
	PartialRestoreRefused Kind = "PartialRestoreRefused"
	BuildFailed           Kind = "BuildFailed"
	Timeout               Kind = "Timeout"
	Unsupported           Kind = "Unsupported"
	InvalidArgument       Kind = "InvalidArgument"
)

// Error is a classified failure. Line is 1-based and zero when unknown.
// Output carries captured process output for validator and build failures.
type Error struct {
	Kind    Kind
	Message string
	Line    int
	Output  string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a failure of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are reported as IOFailure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return IOFailure
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
