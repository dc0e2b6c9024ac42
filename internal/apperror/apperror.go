package apperror

import "errors"

// Kind describes a stable error category that maps to an HTTP status.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindUpstream     Kind = "upstream"
)

// Error is a typed error with a stable Kind and a client-safe message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func NotFound(msg string, err error) error     { return New(KindNotFound, msg, err) }
func Validation(msg string, err error) error   { return New(KindValidation, msg, err) }
func Conflict(msg string, err error) error     { return New(KindConflict, msg, err) }
func Unauthorized(msg string, err error) error { return New(KindUnauthorized, msg, err) }
func Forbidden(msg string, err error) error    { return New(KindForbidden, msg, err) }
func Upstream(msg string, err error) error     { return New(KindUpstream, msg, err) }

// Wrap keeps the kind and message of a sentinel while attaching a cause.
// errors.Is(Wrap(s, cause), s) holds.
func Wrap(sentinel error, cause error) error {
	var e *Error
	if !errors.As(sentinel, &e) {
		return sentinel
	}
	return &wrapped{e: Error{Kind: e.Kind, Msg: e.Msg, Err: cause}, sentinel: sentinel}
}

type wrapped struct {
	e        Error
	sentinel error
}

func (w *wrapped) Error() string { return w.e.Error() }

func (w *wrapped) Unwrap() error { return w.e.Err }

func (w *wrapped) Is(target error) bool {
	return target == w.sentinel
}

func (w *wrapped) As(target interface{}) bool {
	if t, ok := target.(**Error); ok {
		*t = &w.e
		return true
	}
	return false
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
