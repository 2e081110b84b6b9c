package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
)

// Response represents a standard API response.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents an error in the API response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondOK sends a 200 OK response with data.
func RespondOK(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// RespondAccepted sends a 202 response: the change is applied locally, the
// backend outcome is reported separately.
func RespondAccepted(c echo.Context, data any) error {
	return c.JSON(http.StatusAccepted, Response{Success: true, Data: data})
}

// RespondError sends an error JSON response based on the error type.
func RespondError(c echo.Context, err error) error {
	statusCode, apiError := mapError(err)
	return c.JSON(statusCode, Response{Success: false, Error: apiError})
}

// RespondErrorWithCode sends an error JSON response with a specific HTTP status code.
func RespondErrorWithCode(c echo.Context, code int, errorCode, message string) error {
	return c.JSON(code, Response{
		Success: false,
		Error: &Error{
			Code:    errorCode,
			Message: message,
		},
	})
}

// mapError maps domain errors to HTTP status codes and API errors.
func mapError(err error) (int, *Error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, &Error{
			Code:    "NOT_FOUND",
			Message: "The requested resource was not found",
		}

	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest, &Error{
			Code:    "INVALID_INPUT",
			Message: "Invalid input data",
		}

	case errors.Is(err, errs.ErrSessionRequired):
		return http.StatusUnauthorized, &Error{
			Code:    "SESSION_REQUIRED",
			Message: "No valid session token",
		}

	case errors.Is(err, errs.ErrAuth):
		return http.StatusUnauthorized, &Error{
			Code:    "UNAUTHORIZED",
			Message: "The backend rejected the session token",
		}

	case errors.Is(err, errs.ErrPermissionDenied):
		return http.StatusForbidden, &Error{
			Code:    "PERMISSION_DENIED",
			Message: "Notification permission was not granted",
		}

	case errors.Is(err, errs.ErrPlatformUnsupported):
		return http.StatusNotImplemented, &Error{
			Code:    "PUSH_UNSUPPORTED",
			Message: "Push notifications are not supported on this platform",
		}

	case errors.Is(err, errs.ErrTransport):
		return http.StatusBadGateway, &Error{
			Code:    "BACKEND_UNAVAILABLE",
			Message: "The notification backend could not be reached",
		}

	default:
		return http.StatusInternalServerError, &Error{
			Code:    "INTERNAL_ERROR",
			Message: "An internal error occurred",
		}
	}
}
