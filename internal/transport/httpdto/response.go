package httpdto

import (
	"errors"
	"net/http"

	learnit_errors "learnit-events/pkg/errors"
)

const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "NOT_FOUND"
	CodeNotReady     = "NOT_READY"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInternal     = "INTERNAL_ERROR"
)

type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: data}
}

// NewFailureResponse is an unsuccessful response that still carries details,
// such as the readiness checks that failed.
func NewFailureResponse[T any](data T, code string) Response[T] {
	return Response[T]{Success: false, Data: data, Code: code}
}

func NewErrorResponse(err error) Response[any] {
	_, code := StatusFor(err)
	return Response[any]{Success: false, Error: err.Error(), Code: code}
}

// StatusFor maps sentinel errors to an HTTP status and response code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, learnit_errors.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, learnit_errors.ErrInvalidInput),
		errors.Is(err, learnit_errors.ErrMalformedMessage),
		errors.Is(err, learnit_errors.ErrMalformedPayload):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, learnit_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
