// Package apperr defines the error kinds shared by every service.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindPermission
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	case KindState:
		return "state"
	default:
		return "infrastructure"
	}
}

// Error carries a kind and a user-facing message. Err, when set, is the
// underlying cause and is only exposed through Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrPermission     = &Error{Kind: KindPermission}
	ErrState          = &Error{Kind: KindState}
	ErrInfrastructure = &Error{Kind: KindInfrastructure}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }
func Conflict(format string, args ...any) *Error   { return newf(KindConflict, format, args...) }
func NotFound(format string, args ...any) *Error   { return newf(KindNotFound, format, args...) }
func Permission(format string, args ...any) *Error { return newf(KindPermission, format, args...) }
func State(format string, args ...any) *Error      { return newf(KindState, format, args...) }

// Infrastructure wraps a storage or network failure.
func Infrastructure(err error, format string, args ...any) *Error {
	e := newf(KindInfrastructure, format, args...)
	e.Err = err
	return e
}

// KindOf reports the kind of err. Untyped errors are infrastructure failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }
func IsConflict(err error) bool { return err != nil && KindOf(err) == KindConflict }

// HTTPStatus maps an error to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindPermission:
		return http.StatusForbidden
	case KindState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides infrastructure details from API callers.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInfrastructure {
		return e.Message
	}
	return "internal error, please retry"
}
