// Package apperr defines the error taxonomy shared by the stores, the copy
// trade relay and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure so callers can decide between fixing input,
// retrying later, or giving up.
type Kind string

const (
	KindValidation  Kind = "validation_error"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindConstraint  Kind = "constraint_violation"
	KindUnavailable Kind = "store_unavailable"
	KindInternal    Kind = "internal"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed error returned by every store operation.
type Error struct {
	Kind    Kind         `json:"kind"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`

	cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on Kind and, when the target carries one, on Message. This lets
// callers write errors.Is(err, apperr.ErrImmutable) as well as
// errors.Is(err, apperr.NotFound("")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// ErrImmutable is returned when a SpotAdd already executed by the broker is
// targeted by an update or deletion.
var ErrImmutable = &Error{Kind: KindConstraint, Message: "spot add already executed and is immutable"}

// ErrNotReady is returned while the key-value backend is not reachable.
var ErrNotReady = &Error{Kind: KindUnavailable, Message: "store not ready"}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func Constraint(format string, args ...interface{}) *Error {
	return newf(KindConstraint, format, args...)
}

// ValidationFields builds a validation error from per-field messages.
func ValidationFields(fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "invalid input", Fields: fields}
}

// Unavailable wraps a backend connectivity failure.
func Unavailable(cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: "store unavailable", cause: cause}
}

// Internal wraps an unexpected backend or serialization failure.
func Internal(cause error, message string) *Error {
	return &Error{Kind: KindInternal, Message: message, cause: cause}
}

// KindOf reports the Kind carried by err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the HTTP layer replies with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConstraint:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to hand back to API callers; internal
// causes are not exposed.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return "internal error"
		}
		if e.Kind == KindUnavailable {
			return e.Message
		}
		return (&Error{Kind: e.Kind, Message: e.Message, Fields: e.Fields}).Error()
	}
	return "internal error"
}
