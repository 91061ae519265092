package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrAuthUnavailable    ErrorType = "AUTH_UNAVAILABLE"
	ErrInvalidChain       ErrorType = "INVALID_CHAIN_CONFIG"
	ErrSigning            ErrorType = "SIGNING_FAILURE"
	ErrProtocolDecode     ErrorType = "PROTOCOL_DECODE_FAILURE"
	ErrTransport          ErrorType = "TRANSPORT_FAILURE"
	ErrReconnectExhausted ErrorType = "RECONNECT_EXHAUSTED"
	ErrInvalidOrder       ErrorType = "INVALID_ORDER"
	ErrInvalidRequest     ErrorType = "INVALID_REQUEST"
	ErrNotFound           ErrorType = "NOT_FOUND"
	ErrUpstream           ErrorType = "UPSTREAM_ERROR"
	ErrInternal           ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

// Wrap converts any error into an *AppError, keeping existing ones untouched.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// IsType reports whether any error in err's chain is an *AppError of type t.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Type == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidOrder, ErrInvalidRequest, ErrInvalidChain:
		return http.StatusBadRequest
	case ErrAuthUnavailable:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream, ErrTransport:
		return http.StatusBadGateway
	case ErrReconnectExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrAuthUnavailable:
		return "Configure a private key and API credentials for this tier."
	case ErrInvalidChain:
		return "Use a supported chain id (137 or 80002)."
	case ErrInvalidOrder:
		return "Check price, size, token id and expiration."
	case ErrReconnectExhausted:
		return "Call Run again once the upstream is reachable."
	case ErrUpstream:
		return "Retry the request."
	default:
		return ""
	}
}
