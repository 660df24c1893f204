package auth

import (
	"errors"
	"net/http"
)

// ErrorType identifies the class of an authentication/authorization
// failure. The values double as the machine-readable "error" field in
// HTTP responses.
type ErrorType string

const (
	ErrInvalidToken            ErrorType = "INVALID_TOKEN"
	ErrTokenExpired            ErrorType = "TOKEN_EXPIRED"
	ErrInvalidCredentials      ErrorType = "INVALID_CREDENTIALS"
	ErrUserNotFound            ErrorType = "USER_NOT_FOUND"
	ErrUserAlreadyExists       ErrorType = "USER_ALREADY_EXISTS"
	ErrInsufficientPermissions ErrorType = "INSUFFICIENT_PERMISSIONS"
	ErrPropertyAccessDenied    ErrorType = "PROPERTY_ACCESS_DENIED"
	ErrPropertyIDRequired      ErrorType = "PROPERTY_ID_REQUIRED"
	ErrInvitationAlreadyExists ErrorType = "INVITATION_ALREADY_EXISTS"
	ErrInvitationNotFound      ErrorType = "INVITATION_NOT_FOUND"
	ErrInvitationCreateFailed  ErrorType = "INVITATION_CREATION_FAILED"
	ErrInvitationUpdateFailed  ErrorType = "INVITATION_UPDATE_FAILED"
	ErrInvalidInvitationStatus ErrorType = "INVALID_INVITATION_STATUS"
)

// Error is the typed error raised by the auth core. It carries the class,
// the HTTP status the outer layer should respond with, and a human
// message. Handlers translate it with WriteError / status + JSON.
type Error struct {
	Type    ErrorType
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Type) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Type) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a typed auth error.
func NewError(t ErrorType, status int, message string) *Error {
	return &Error{Type: t, Status: status, Message: message}
}

// WrapError builds a typed auth error preserving the upstream cause for
// operator logs. The cause never reaches the HTTP response body.
func WrapError(t ErrorType, status int, message string, cause error) *Error {
	return &Error{Type: t, Status: status, Message: message, Cause: cause}
}

// AsAuthError extracts an *Error from an error chain.
func AsAuthError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsType reports whether err is an auth error of the given type.
func IsType(err error, t ErrorType) bool {
	ae, ok := AsAuthError(err)
	return ok && ae.Type == t
}

// StatusOf returns the HTTP status for an error, defaulting unclassified
// failures to 500.
func StatusOf(err error) int {
	if ae, ok := AsAuthError(err); ok {
		return ae.Status
	}
	return http.StatusInternalServerError
}
