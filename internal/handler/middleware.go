package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/calwidget/internal/domain"
)

const contextKeyCredential = "credential"

// CredentialLoader is the part of the auth service the middleware needs.
type CredentialLoader interface {
	Current(ctx context.Context) (domain.Credential, error)
}

// RequestLogger logs each request once it has been answered. Errors are
// handed to the error handler first so the logged status is the one the
// client saw. Server errors log at warn level.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}

			slog.Log(c.Request().Context(), level, "http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)
			return nil
		}
	}
}

// RequireCredential loads the stored credential and injects it into echo
// context. Without one the request fails with ErrNeedsReauth, which the error
// handler turns into a redirect to the authorization flow.
func RequireCredential(auth CredentialLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cred, err := auth.Current(c.Request().Context())
			if err != nil {
				return err
			}

			c.Set(contextKeyCredential, cred)
			return next(c)
		}
	}
}

// GetCredential extracts the credential injected by RequireCredential.
func GetCredential(c echo.Context) (domain.Credential, bool) {
	cred, ok := c.Get(contextKeyCredential).(domain.Credential)
	return cred, ok
}
