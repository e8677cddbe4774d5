// Package errors provides the error kinds surfaced by the hub to clients.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a stable, machine-readable error category.
type Kind string

// Error kinds surfaced across the trust boundary.
const (
	KindInvalidArgument    Kind = "InvalidArgument"
	KindUnauthorized       Kind = "Unauthorized"
	KindUnknownTenant      Kind = "UnknownTenant"
	KindForbidden          Kind = "Forbidden"
	KindNotFound           Kind = "NotFound"
	KindConflict           Kind = "Conflict"
	KindNoRecipient        Kind = "NoRecipient"
	KindRateLimited        Kind = "RateLimited"
	KindStorageError       Kind = "StorageError"
	KindDegradedCapability Kind = "DegradedCapability"
)

// AppError carries an error kind, a human-readable message, and the HTTP
// status used when the error crosses the REST surface.
type AppError struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// InvalidArgument reports a schema violation or missing field. The field
// path is included in the message so clients can locate the offender.
func InvalidArgument(field, message string) *AppError {
	msg := message
	if field != "" {
		msg = fmt.Sprintf("%s: %s", field, message)
	}
	return &AppError{Kind: KindInvalidArgument, Message: msg, HTTPStatus: http.StatusBadRequest}
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// UnknownTenant reports an identity token whose organization claim does not
// map to a provisioned tenant.
func UnknownTenant(org string) *AppError {
	return &AppError{
		Kind:       KindUnknownTenant,
		Message:    fmt.Sprintf("organization '%s' is not a known tenant", org),
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden reports a missing scope for the requested tool.
func Forbidden(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// NotFound reports an absent entity, agent, session, or handoff.
func NotFound(resource, name string) *AppError {
	return &AppError{
		Kind:       KindNotFound,
		Message:    fmt.Sprintf("%s '%s' not found", resource, name),
		HTTPStatus: http.StatusNotFound,
	}
}

// Conflict reports a refused duplicate, such as a unique-constraint hit on a
// deliberate create.
func Conflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// NoRecipient reports a send_message whose selector matched no agents.
func NoRecipient(message string) *AppError {
	return &AppError{Kind: KindNoRecipient, Message: message, HTTPStatus: http.StatusUnprocessableEntity}
}

// RateLimited reports an empty token bucket for the calling API key.
func RateLimited() *AppError {
	return &AppError{
		Kind:       KindRateLimited,
		Message:    "rate limit exceeded, retry later",
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// Storage reports a transient primary-store failure with the cause wrapped.
func Storage(message string, err error) *AppError {
	return &AppError{Kind: KindStorageError, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// Degraded reports a non-fatal capability loss, such as semantic search
// being unavailable. Callers may continue.
func Degraded(message string) *AppError {
	return &AppError{Kind: KindDegradedCapability, Message: message, HTTPStatus: http.StatusOK}
}

// Wrap attaches context to an existing error. An AppError keeps its kind and
// status; anything else becomes a StorageError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Kind:       appErr.Kind,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}
	return &AppError{Kind: KindStorageError, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// KindOf returns the kind of an error, or StorageError for unexpected ones.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStorageError
}

// IsKind checks whether the error carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
