// Package apperr defines the error kinds shared by the order and payment packages.
// Callers classify failures with errors.Is against the kind sentinels or with KindOf,
// never by inspecting error text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindRuleViolation
	KindNotFound
	KindProcessor
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRuleViolation:
		return "rule_violation"
	case KindNotFound:
		return "not_found"
	case KindProcessor:
		return "processor"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Kind sentinels match every *Error of the same kind regardless of its code.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrRuleViolation = &Error{Kind: KindRuleViolation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrProcessor     = &Error{Kind: KindProcessor}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrInternal      = &Error{Kind: KindInternal}
)

// Error is a classified domain error. Code is a stable machine-readable identifier
// such as ORDER_NOT_FOUND.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target has the same kind and, when target carries a code, the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func (e *Error) ErrorKind() Kind {
	return e.Kind
}

// Withf returns a copy of e with a detailed message. The copy still matches e via errors.Is.
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

type kinded interface {
	ErrorKind() Kind
}

// KindOf returns the kind of the first classified error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
