// Package errs classifies domain errors into stable failure kinds.
package errs

import "errors"

// Kind is a stable failure category that callers can branch on.
type Kind string

const (
	KindUnknown       Kind = "internal_error"
	KindValidation    Kind = "validation_error"
	KindAuthorization Kind = "authorization_error"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindDependency    Kind = "dependency_error"
	KindUnavailable   Kind = "service_unavailable"
)

// Error binds a machine-readable code to a Kind.
type Error struct {
	kind      Kind
	code      string
	retryable bool
}

// New returns a sentinel error of the given kind. Code doubles as the message.
func New(kind Kind, code string) *Error {
	return &Error{kind: kind, code: code, retryable: kind == KindDependency || kind == KindUnavailable}
}

// NewRetryable returns a sentinel that is retryable regardless of its kind.
func NewRetryable(kind Kind, code string) *Error {
	return &Error{kind: kind, code: code, retryable: true}
}

func (e *Error) Error() string { return e.code }

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Code() string { return e.code }

func (e *Error) Retryable() bool { return e.retryable }

// KindOf reports the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// CodeOf reports the code of the first classified error in the chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return string(KindUnknown)
}

// IsRetryable reports whether retrying the operation might succeed.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.retryable
	}
	return false
}
