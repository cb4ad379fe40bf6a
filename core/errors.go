package core

import "github.com/pkg/errors"

var (
	ErrUnauthenticated = NewAppError(KindUnauthenticated, "auth.unauthenticated", "user not authenticated")
	ErrForbidden       = NewAppError(KindForbidden, "auth.forbidden", "permission denied")
	ErrNotFound        = NewAppError(KindNotFound, "error.not_found", "not found")
	ErrSystem          = NewAppError(KindSystem, "error.system", "system error")
)

// ErrorKind classifies domain errors; the transport layers map kinds to their own status codes.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindSystem
)

// AppError is a domain error carrying the message key used to render it to end users.
type AppError struct {
	Kind ErrorKind
	Key  string
	Msg  string
	Data map[string]interface{}
}

func NewAppError(kind ErrorKind, key, msg string) *AppError {
	return &AppError{Kind: kind, Key: key, Msg: msg}
}

func (err *AppError) Error() string {
	return err.Msg
}

// WithData returns a copy of err with the template data used when localizing its message.
func (err *AppError) WithData(data map[string]interface{}) *AppError {
	e := *err
	e.Data = data
	return &e
}

// Is reports whether target is the same domain error, ignoring template data.
func (err *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Kind == err.Kind && t.Key == err.Key
}

// KindOf returns the kind of the domain error at the root of err, or KindSystem.
func KindOf(err error) ErrorKind {
	if appErr, ok := errors.Cause(err).(*AppError); ok {
		return appErr.Kind
	}
	return KindSystem
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
