package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/calwidget/internal/domain"
)

// AuthorizePath is where callers are sent when they must (re)authorize.
const AuthorizePath = "/authorize"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Code    string       `json:"code"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// HTTPErrorHandler is the global error handler for echo. Authentication
// failures redirect into the authorization flow instead of surfacing.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	if domain.IsAuthError(err) {
		slog.Info("redirecting to authorization",
			"path", c.Request().URL.Path,
			"reason", err.Error(),
		)
		if redirectErr := c.Redirect(http.StatusFound, AuthorizePath); redirectErr != nil {
			slog.Error("failed to send redirect", "error", redirectErr)
		}
		return
	}

	status, body := mapError(err)
	if jsonErr := c.JSON(status, body); jsonErr != nil {
		slog.Error("failed to send error response", "error", jsonErr)
	}
}

func mapError(err error) (int, ErrorResponse) {
	// Handle echo's own HTTP errors (404, 405, etc.)
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, ErrorResponse{
			Error: msg,
			Code:  http.StatusText(echoErr.Code),
		}
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{
			Error: "The requested event was not found",
			Code:  "not_found",
		}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "invalid_input",
		}
	case errors.Is(err, domain.ErrProviderUnavailable):
		slog.Warn("calendar provider failure", "error", err)
		return http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "provider_unavailable",
		}
	default:
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			return http.StatusBadRequest, ErrorResponse{
				Error: "Validation failed",
				Code:  "validation_error",
				Details: []FieldError{
					{Field: validationErr.Field, Message: validationErr.Message},
				},
			}
		}

		slog.Error("unhandled error", "error", err)
		return http.StatusInternalServerError, ErrorResponse{
			Error: "An unexpected error occurred",
			Code:  "internal_error",
		}
	}
}
