// Package apperr classifies the failures the site can surface to a guest.
//
// Every error carries a Kind and a short guest-facing Message. The wrapped
// cause is kept for logs and never written to a response.
package apperr

import (
	"errors"
	"net/http"
)

// Kind identifies the class of a failure.
type Kind string

const (
	// KindValidation is bad or missing user input.
	KindValidation Kind = "VALIDATION"

	// KindAuth is a missing, invalid or expired credential.
	KindAuth Kind = "UNAUTHORIZED"

	// KindUpstream is the hosted store or storage rejecting or not answering.
	KindUpstream Kind = "UPSTREAM"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a KindValidation error.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Auth returns a KindAuth error.
func Auth(msg string) *Error {
	return &Error{Kind: KindAuth, Message: msg}
}

// Upstream returns a KindUpstream error wrapping cause.
func Upstream(msg string, cause error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the guest-facing message of err, or fallback when
// err is not classified.
func PublicMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
