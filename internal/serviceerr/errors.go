// Package serviceerr defines the error taxonomy of the authentication
// flow. Handlers translate any of these into a generic rejection
// response; the concrete code is only ever logged, never exposed to the
// client.
package serviceerr

import "net/http"

// Code identifies a failure class.
type Code string

const (
	// Codes reported by the IdP on the callback follow RFC6749 naming.
	CodeAccessDenied Code = "access_denied"
	CodeServerError  Code = "server_error"

	CodeUnknown               Code = "unknown"
	CodeConflict              Code = "conflict"
	CodeNotFound              Code = "not_found"
	CodeMalformedCallback     Code = "malformed_callback"
	CodeInvalidState          Code = "invalid_or_expired_state"
	CodeIdPError              Code = "idp_error"
	CodeTokenExchangeFailed   Code = "token_exchange_failed"
	CodeTokenValidationFailed Code = "token_validation_failed"
	CodeIdPUnreachable        Code = "idp_unreachable"
	CodeSessionStore          Code = "session_store_unavailable"
	CodeConfiguration         Code = "invalid_configuration"
)

// Error carries a failure class plus an internal description.
type Error struct {
	Err         Code
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

// Is makes errors.Is match any *Error with the same code, so callers can
// compare against the predefined sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Err == t.Err
}

// HTTPStatus maps the failure class onto the response status sent to the
// client. Authentication failures deliberately collapse onto 401 to
// avoid acting as an oracle for which validation step failed.
func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeMalformedCallback:
		return http.StatusBadRequest
	case CodeInvalidState, CodeIdPError, CodeTokenExchangeFailed, CodeTokenValidationFailed:
		return http.StatusUnauthorized
	case CodeIdPUnreachable:
		return http.StatusBadGateway
	case CodeSessionStore:
		return http.StatusServiceUnavailable
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrUnknown  = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrConflict = &Error{Err: CodeConflict, Description: "already exists"}
	ErrNotFound = &Error{Err: CodeNotFound, Description: "not found"}

	// ErrMalformedCallback: the IdP redirect is missing the state or
	// code parameter.
	ErrMalformedCallback = &Error{Err: CodeMalformedCallback, Description: "missing state or code"}

	// ErrInvalidState covers unknown, expired and already consumed state
	// tokens. Callers must not reveal which of the three it was.
	ErrInvalidState = &Error{Err: CodeInvalidState, Description: "invalid or expired state"}

	// ErrIdP: the IdP reported an explicit error on the callback.
	ErrIdP = &Error{Err: CodeIdPError, Description: "identity provider returned an error"}

	ErrTokenExchange   = &Error{Err: CodeTokenExchangeFailed, Description: "token exchange failed"}
	ErrTokenValidation = &Error{Err: CodeTokenValidationFailed, Description: "token validation failed"}
	ErrIdPUnreachable  = &Error{Err: CodeIdPUnreachable, Description: "identity provider unreachable"}

	// ErrSessionStore marks a session store failure. Requests fail
	// closed on it; the process keeps running.
	ErrSessionStore = &Error{Err: CodeSessionStore, Description: "session store unavailable"}

	// ErrConfiguration is fatal at startup.
	ErrConfiguration = &Error{Err: CodeConfiguration, Description: "invalid configuration"}
)
