package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so callers can test
// against the sentinel values below with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// StatusCode maps the error code onto an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrUnauthorized, ErrAuthentication:
		return http.StatusUnauthorized
	case ErrForbidden, ErrAuthorization:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrAuthentication
	ErrAuthorization
	ErrConflict
)

// Sentinels for errors.Is checks.
var (
	AuthenticationError = &AppError{Code: ErrAuthentication, Message: "invalid credentials"}
	AuthorizationError  = &AppError{Code: ErrAuthorization, Message: "not permitted"}
	ConflictError       = &AppError{Code: ErrConflict, Message: "conflict"}
	NotFoundError       = &AppError{Code: ErrNotFound, Message: "not found"}
	BadRequestError     = &AppError{Code: ErrBadRequest, Message: "bad request"}
	InternalError       = &AppError{Code: ErrInternal, Message: "internal server error"}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Authentication reports bad credentials.
func Authentication(message string) *AppError {
	return &AppError{Code: ErrAuthentication, Message: message}
}

// Authorization reports a role or action that is not permitted.
func Authorization(message string) *AppError {
	return &AppError{Code: ErrAuthorization, Message: message}
}

// Conflict reports a uniqueness violation such as a duplicate email.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrConflict, Message: message}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(err error) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: "forbidden",
		Err:     err,
	}
}

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
