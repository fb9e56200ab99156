// Package apperror carries the typed errors the service layer hands to the
// HTTP boundary. An *Error holds the status code it should be rendered with,
// so handlers never inspect error strings to pick one.
package apperror

import (
	"errors"
	"net/http"
)

type Error struct {
	Code    int    `json:"status"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, message)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

func Conflict(message string) *Error {
	return New(http.StatusConflict, message)
}

func Internal(message string) *Error {
	return New(http.StatusInternalServerError, message)
}

// From returns err as an *Error, wrapping anything unrecognized as a 500 with
// a generic message so internal details never leak to clients.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("Something went wrong!")
}

// StatusOf reports the HTTP status an error maps to.
func StatusOf(err error) int {
	return From(err).Code
}
