package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrEntitlement = errors.New("generation limit reached")
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrBackend     = errors.New("backend error")

	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// BackendError is returned by a generation or rendering backend. Its Error()
// is the message recorded on the failed task, so it carries no prefix.
type BackendError struct {
	Stage string
	Op    string
	Err   error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return "unknown backend failure"
	}
	return e.Err.Error()
}

func (e *BackendError) Unwrap() []error { return []error{ErrBackend, e.Err} }

// Backend wraps err as a BackendError for the given stage and operation.
// Errors that already are BackendErrors pass through untouched.
func Backend(stage, op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Stage: stage, Op: op, Err: err}
}

// Backendf builds a BackendError from a formatted message.
func Backendf(stage, op, format string, args ...any) error {
	return &BackendError{Stage: stage, Op: op, Err: fmt.Errorf(format, args...)}
}

// RenderError is a BackendError raised by the rendering stage.
func RenderError(op string, err error) error {
	return Backend("rendering", op, err)
}

// Wrap tags err with marker so callers can classify it with errors.Is.
func Wrap(marker error, op, message string, err error) error {
	detail := joinDetail(op, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Message returns the human readable part of err, without the marker prefix
// added by Wrap.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{ErrValidation, ErrEntitlement, ErrNotFound, ErrForbidden, ErrConflict, ErrUnauthorized} {
		if errors.Is(err, marker) {
			msg = strings.TrimPrefix(msg, marker.Error()+": ")
			break
		}
	}
	return msg
}

// HTTPStatus maps an error to the response status used by the request layer.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrEntitlement), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func joinDetail(op, message string) string {
	parts := make([]string, 0, 2)
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, op)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "request failed"
	}
	return strings.Join(parts, ": ")
}
