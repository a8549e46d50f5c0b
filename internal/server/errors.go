// errors.go - Structured error handling for API responses
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/KaramelBytes/dropsight/internal/logging"
	"github.com/KaramelBytes/dropsight/internal/pipeline"
	"github.com/KaramelBytes/dropsight/internal/upload"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-" msgpack:"-"`
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 error for a specific field
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("invalid %s: %s", field, message),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(code, message string) *APIError {
	return &APIError{Status: http.StatusConflict, Code: code, Message: message}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: message}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// fromPipeline maps controller and acceptor errors onto API errors.
func fromPipeline(err error) *APIError {
	var ve *upload.ValidationError
	switch {
	case errors.As(err, &ve):
		return &APIError{Status: http.StatusRequestEntityTooLarge, Code: "TOO_LARGE", Message: ve.Message}
	case errors.Is(err, upload.ErrNoFile):
		return NewBadRequestError("no file provided", nil)
	case errors.Is(err, pipeline.ErrBusy):
		return NewConflictError("BUSY", err.Error())
	case errors.Is(err, pipeline.ErrResultPending):
		return NewConflictError("RESULT_PENDING", err.Error())
	case errors.Is(err, pipeline.ErrNothingToDismiss):
		return NewConflictError("NOTHING_TO_DISMISS", err.Error())
	case errors.Is(err, pipeline.ErrClosed):
		return &APIError{Status: http.StatusServiceUnavailable, Code: "SHUTTING_DOWN", Message: err.Error()}
	}
	return NewInternalError("unexpected pipeline error", err)
}

// ErrorHandler renders every error as an APIError envelope.
// Usage: e.HTTPErrorHandler = server.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{Status: httpErr.Code, Code: "HTTP_ERROR", Message: fmt.Sprintf("%v", httpErr.Message)}
		if httpErr.Code == http.StatusRequestEntityTooLarge {
			apiErr.Code = "TOO_LARGE"
		}
	default:
		apiErr = NewInternalError("an unexpected error occurred", err)
	}

	if apiErr.Status >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("request failed",
			slog.String("code", apiErr.Code), slog.String("error", err.Error()))
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(apiErr.Status)
	} else {
		werr = c.JSON(apiErr.Status, apiErr)
	}
	if werr != nil {
		logging.FromContext(c.Request().Context()).Warn("write error response", "error", werr)
	}
}
