package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes
const (
	// Authentication errors
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeDeactivated  = "DEACTIVATED"

	// Authorization errors
	ErrCodeForbidden = "FORBIDDEN"

	// Validation errors
	ErrCodeInvalidInput = "INVALID_INPUT"

	// Resource errors
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeConflict      = "CONFLICT"

	// Business logic errors
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeExpired           = "EXPIRED"

	// Service errors
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeExternalFailure    = "EXTERNAL_FAILURE"
	ErrCodeInvariantViolation = "INVARIANT_VIOLATION"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// Kind classifies a domain failure. Handlers translate kinds to HTTP statuses.
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindForbidden          Kind = "Forbidden"
	KindInvalidInput       Kind = "InvalidInput"
	KindInvalidTransition  Kind = "InvalidTransition"
	KindAlreadyExists      Kind = "AlreadyExists"
	KindExpired            Kind = "Expired"
	KindExternalFailure    Kind = "ExternalFailure"
	KindInvariantViolation Kind = "InvariantViolation"
	KindUnauthenticated    Kind = "Unauthenticated"
	KindDeactivated        Kind = "Deactivated"
	KindUnavailable        Kind = "Unavailable"
	KindInternal           Kind = "Internal"
)

var kindStatus = map[Kind]int{
	KindNotFound:           http.StatusNotFound,
	KindForbidden:          http.StatusForbidden,
	KindInvalidInput:       http.StatusBadRequest,
	KindInvalidTransition:  http.StatusConflict,
	KindAlreadyExists:      http.StatusConflict,
	KindExpired:            http.StatusGone,
	KindExternalFailure:    http.StatusBadGateway,
	KindInvariantViolation: http.StatusInternalServerError,
	KindUnauthenticated:    http.StatusUnauthorized,
	KindDeactivated:        http.StatusForbidden,
	KindUnavailable:        http.StatusServiceUnavailable,
	KindInternal:           http.StatusInternalServerError,
}

// HTTPStatus returns the status code used for the kind.
func (k Kind) HTTPStatus() int {
	if status, ok := kindStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether repeating the operation may succeed.
func (k Kind) Retryable() bool {
	return k == KindExternalFailure || k == KindUnavailable
}

// DomainError is a typed failure returned by services: a kind, a stable
// machine-readable code and one human-readable message.
type DomainError struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so wrapped sentinels compare equal.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !stderrors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewDomainError creates a new DomainError.
func NewDomainError(kind Kind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

// KindOf extracts the kind of err, or KindInternal if err is not a domain error.
func KindOf(err error) Kind {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// APIError represents a standardized API error response
type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new APIError
func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

// RespondWithError sends an error response
func RespondWithError(c *gin.Context, statusCode int, err *APIError) {
	c.JSON(statusCode, err)
}

// Respond translates err into an error response. Domain errors keep their
// code and message; anything else becomes a generic internal error, with the
// underlying message attached only in debug mode.
func Respond(c *gin.Context, err error) {
	var de *DomainError
	if stderrors.As(err, &de) {
		RespondWithError(c, de.Kind.HTTPStatus(), &APIError{
			Code:      de.Code,
			Message:   de.Message,
			Retryable: de.Kind.Retryable(),
		})
		return
	}

	apiErr := NewAPIError(ErrCodeInternalError, "Internal server error")
	if gin.Mode() == gin.DebugMode && err != nil {
		apiErr.Details = err.Error()
	}
	RespondWithError(c, http.StatusInternalServerError, apiErr)
}

// Helper functions for common error responses

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Authentication required"
	}
	RespondWithError(c, http.StatusUnauthorized, NewAPIError(ErrCodeUnauthorized, message))
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "Access denied"
	}
	RespondWithError(c, http.StatusForbidden, NewAPIError(ErrCodeForbidden, message))
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondWithError(c, http.StatusNotFound, NewAPIError(ErrCodeNotFound, message))
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "Invalid request"
	}
	RespondWithError(c, http.StatusBadRequest, NewAPIError(ErrCodeInvalidInput, message))
}

// TooManyRequests sends a 429 response
func TooManyRequests(c *gin.Context, message string) {
	if message == "" {
		message = "Too many requests"
	}
	RespondWithError(c, http.StatusTooManyRequests, NewAPIError(ErrCodeRateLimited, message))
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	if message == "" {
		message = "Internal server error"
	}
	RespondWithError(c, http.StatusInternalServerError, NewAPIError(ErrCodeInternalError, message))
}
