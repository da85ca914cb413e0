package common

import (
	"errors"
	"net/http"
)

// Kind classifies errors that cross the HTTP boundary
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindToolExecution Kind = "tool_execution"
	KindStorage       Kind = "storage"
	KindTooLarge      Kind = "too_large"
	KindInternal      Kind = "internal"
)

// Error is a classified error. Message is safe to show to clients; Err is the
// underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a missing or expired session or file
func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Validation reports a malformed request
func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

// Conflict reports a request that clashes with the current session state
func Conflict(message string, err error) error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// ToolExecution reports a failed, timed out or output-less tool run
func ToolExecution(message string, err error) error {
	return &Error{Kind: KindToolExecution, Message: message, Err: err}
}

// Storage reports a disk I/O failure
func Storage(message string, err error) error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

// TooLarge reports an upload above the configured limit
func TooLarge(message string) error {
	return &Error{Kind: KindTooLarge, Message: message}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the response status code
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing message for err. Unclassified errors
// and not-found errors never expose their details.
func PublicMessage(err error) string {
	var classified *Error
	if !errors.As(err, &classified) {
		return "Internal server error"
	}
	switch classified.Kind {
	case KindNotFound:
		return "Session or file not found or expired"
	case KindStorage:
		return "Storage failure on the server"
	}
	if classified.Message == "" {
		return "Internal server error"
	}
	return classified.Message
}
